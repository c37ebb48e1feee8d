// Package layout loads the declarative video templates that decide canvas
// size, image fit, and caption styling for assembly.
//
// Template ids have the form "WxH/name". Built-in templates are embedded; a
// templates directory may add more or override a built-in id.
package layout

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var builtinFS embed.FS

// ErrUnknownTemplate is returned by Registry.Get for unregistered ids.
var ErrUnknownTemplate = errors.New("unknown template")

// Image fit modes.
const (
	FitContain = "contain"
	FitCover   = "cover"
)

// Caption positions.
const (
	PositionTop    = "top"
	PositionCenter = "center"
	PositionBottom = "bottom"
)

// Caption styles the burned-in narration text.
type Caption struct {
	FontFile        string `yaml:"font_file"`
	FontSize        int    `yaml:"font_size"`
	Color           string `yaml:"color"`
	BoxColor        string `yaml:"box_color"`
	Position        string `yaml:"position"`
	Margin          int    `yaml:"margin"`
	MaxCharsPerLine int    `yaml:"max_chars_per_line"`
	LineSpacing     int    `yaml:"line_spacing"`
}

// Template describes the output canvas.
type Template struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	FPS        int     `yaml:"fps"`
	Background string  `yaml:"background"`
	ImageFit   string  `yaml:"image_fit"`
	Caption    Caption `yaml:"caption"`
	Source     string  `yaml:"-"`
}

// ParseSize extracts width and height from an id such as "1080x1920/default".
func ParseSize(id string) (int, int, error) {
	prefix, _, ok := strings.Cut(strings.TrimSpace(id), "/")
	if !ok {
		return 0, 0, fmt.Errorf("template id %q: want WxH/name", id)
	}
	ws, hs, ok := strings.Cut(strings.ToLower(prefix), "x")
	if !ok {
		return 0, 0, fmt.Errorf("template id %q: want WxH/name", id)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("template id %q: invalid width", id)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("template id %q: invalid height", id)
	}
	return w, h, nil
}

// Parse decodes one YAML template document and applies defaults.
func Parse(data []byte) (Template, error) {
	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return Template{}, fmt.Errorf("decode template: %w", err)
	}
	if err := tpl.normalize(); err != nil {
		return Template{}, err
	}
	return tpl, nil
}

func (t *Template) normalize() error {
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return errors.New("template: id is required")
	}
	w, h, err := ParseSize(t.ID)
	if err != nil {
		return err
	}
	if t.Width <= 0 {
		t.Width = w
	}
	if t.Height <= 0 {
		t.Height = h
	}
	if t.Width%2 != 0 || t.Height%2 != 0 {
		return fmt.Errorf("template %s: width and height must be even", t.ID)
	}
	if t.Name == "" {
		t.Name = t.ID
	}
	if t.FPS <= 0 {
		t.FPS = 30
	}
	if t.Background == "" {
		t.Background = "black"
	}
	switch t.ImageFit = strings.ToLower(strings.TrimSpace(t.ImageFit)); t.ImageFit {
	case "":
		t.ImageFit = FitContain
	case FitContain, FitCover:
	default:
		return fmt.Errorf("template %s: image_fit must be contain or cover", t.ID)
	}
	c := &t.Caption
	if c.FontSize <= 0 {
		c.FontSize = max(t.Height/36, 12)
	}
	if c.Color == "" {
		c.Color = "white"
	}
	switch c.Position = strings.ToLower(strings.TrimSpace(c.Position)); c.Position {
	case "":
		c.Position = PositionBottom
	case PositionTop, PositionCenter, PositionBottom:
	default:
		return fmt.Errorf("template %s: caption position must be top, center, or bottom", t.ID)
	}
	if c.Margin < 0 {
		c.Margin = 0
	}
	if c.MaxCharsPerLine <= 0 {
		// Roughly 60% of a glyph em per character.
		c.MaxCharsPerLine = max(t.Width*10/(c.FontSize*6), 8)
	}
	return nil
}

// Registry holds the templates known to the process.
type Registry struct {
	templates map[string]Template
}

// NewRegistry loads the built-in templates and then every *.yaml/*.yml file
// in dir. An empty dir loads only the built-ins.
func NewRegistry(dir string) (*Registry, error) {
	reg := &Registry{templates: make(map[string]Template)}
	if err := reg.loadFS(builtinFS, "templates", "builtin"); err != nil {
		return nil, err
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return reg, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return reg, nil
	}
	if err := reg.loadFS(os.DirFS(dir), ".", dir); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) loadFS(fsys fs.FS, root, source string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read templates %s: %w", source, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := fs.ReadFile(fsys, pathJoin(root, entry.Name()))
		if err != nil {
			return fmt.Errorf("read template %s: %w", entry.Name(), err)
		}
		tpl, err := Parse(data)
		if err != nil {
			return fmt.Errorf("template %s: %w", entry.Name(), err)
		}
		tpl.Source = source
		r.templates[tpl.ID] = tpl
	}
	return nil
}

func pathJoin(root, name string) string {
	if root == "." || root == "" {
		return name
	}
	return root + "/" + name
}

// Get returns the template registered under id.
func (r *Registry) Get(id string) (Template, error) {
	tpl, ok := r.templates[strings.TrimSpace(id)]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
	}
	return tpl, nil
}

// List returns every template sorted by id.
func (r *Registry) List() []Template {
	out := make([]Template, 0, len(r.templates))
	for _, tpl := range r.templates {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
