package main

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/runstore"
)

const logFileName = "reelforge.log"

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	mu   sync.Mutex
	runs *runstore.Store
	app  *application
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// ensureLogger writes logs to the log directory, and to stderr only with
// --verbose so the progress display stays readable.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logPath := filepath.Join(cfg.Paths.LogDir, logFileName)
		outputs := []string{logPath}
		if c.verbose != nil && *c.verbose {
			outputs = append(outputs, "stderr")
		}
		logger, err := logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			OutputPaths: outputs,
		})
		if err != nil {
			c.loggerErr = err
			return
		}
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, "reelforge*.log", logPath)
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// runStore opens the run archive once per command.
func (c *commandContext) runStore() (*runstore.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runs != nil {
		return c.runs, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	st, err := runstore.Open(cfg)
	if err != nil {
		return nil, err
	}
	c.runs = st
	return st, nil
}

// application wires every backend. Only commands that drive runs need it.
func (c *commandContext) application() (*application, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	runs, err := c.runStore()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.app != nil {
		return c.app, nil
	}
	app, err := newApplication(cfg, runs, logger)
	if err != nil {
		return nil, err
	}
	c.app = app
	return app, nil
}

func (c *commandContext) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.runs != nil {
		errs = append(errs, c.runs.Close())
		c.runs = nil
	}
	c.app = nil
	return errors.Join(errs...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
