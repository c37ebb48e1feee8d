package planner

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// AlignScript maps each piece returned by the splitter back onto script and
// returns the matching substrings of script. Pieces are compared on their
// non-whitespace runes only, so the splitter may normalise spacing and line
// breaks, but any other change (a paraphrase, a reordering, a dropped or an
// added word) is rejected.
func AlignScript(script string, pieces []string) ([]string, error) {
	out := make([]string, 0, len(pieces))
	pos := 0
	for i, piece := range pieces {
		pos = skipSpace(script, pos)
		start := pos
		matched := 0
		for _, r := range piece {
			if unicode.IsSpace(r) {
				continue
			}
			pos = skipSpace(script, pos)
			if pos >= len(script) {
				return nil, fmt.Errorf("segment %d runs past the end of the script", i)
			}
			expect, size := utf8.DecodeRuneInString(script[pos:])
			if r != expect {
				return nil, fmt.Errorf("segment %d diverges from the script at byte %d: got %q, want %q", i, pos, r, expect)
			}
			pos += size
			matched++
		}
		if matched == 0 {
			return nil, fmt.Errorf("segment %d is empty", i)
		}
		out = append(out, script[start:pos])
	}
	if rest := skipSpace(script, pos); rest < len(script) {
		return nil, fmt.Errorf("script text after byte %d is missing from the segments", rest)
	}
	return out, nil
}

func skipSpace(s string, pos int) int {
	for pos < len(s) {
		r, size := utf8.DecodeRuneInString(s[pos:])
		if !unicode.IsSpace(r) {
			break
		}
		pos += size
	}
	return pos
}
