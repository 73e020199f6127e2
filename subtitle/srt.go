package subtitle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Cue is one timed subtitle span. Start and End are seconds from stream start.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Store holds cues in file order. A nil or empty Store answers every lookup with no cue.
type Store struct {
	cues []Cue
}

var (
	blockSepRe = regexp.MustCompile(`\n\s*\n`)
	timeLineRe = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2},\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2},\d{3})`)
	stampRe    = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2}),(\d{3})$`)
)

// ParseTimestamp converts "HH:MM:SS,mmm" into seconds.
func ParseTimestamp(s string) (float64, error) {
	m := stampRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("bad srt timestamp %q", s)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	ms, _ := strconv.Atoi(m[4])
	total := ((h*60+mins)*60+sec)*1000 + ms
	return float64(total) / 1000, nil
}

// Parse reads an SRT cue list. Malformed blocks are skipped; only a read
// failure is reported as an error.
func Parse(r io.Reader) (*Store, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return &Store{}, err
	}
	content := strings.ReplaceAll(string(b), "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.TrimSpace(content)
	if content == "" {
		return &Store{}, nil
	}

	st := &Store{}
	for _, block := range blockSepRe.Split(content, -1) {
		if cue, ok := parseBlock(block); ok {
			st.cues = append(st.cues, cue)
		}
	}
	return st, nil
}

func parseBlock(block string) (Cue, bool) {
	lines := strings.Split(strings.TrimSpace(block), "\n")
	if len(lines) < 3 {
		return Cue{}, false
	}
	idx, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Cue{}, false
	}
	m := timeLineRe.FindStringSubmatch(strings.TrimSpace(lines[1]))
	if m == nil {
		return Cue{}, false
	}
	start, err := ParseTimestamp(m[1])
	if err != nil {
		return Cue{}, false
	}
	end, err := ParseTimestamp(m[2])
	if err != nil || start > end {
		return Cue{}, false
	}
	text := norm.NFC.String(strings.TrimSpace(strings.Join(lines[2:], "\n")))
	return Cue{Index: idx, Start: start, End: end, Text: text}, true
}

// Load opens and parses path. A missing or unreadable file yields an empty
// store together with the error, so callers can warn and keep playing.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return &Store{}, fmt.Errorf("srt file %q: %w", path, err)
	}
	defer f.Close()
	st, err := Parse(f)
	if err != nil {
		return st, fmt.Errorf("srt file %q: %w", path, err)
	}
	return st, nil
}

// Discover returns the same-basename .srt next to videoPath, if one exists.
func Discover(videoPath string) (string, bool) {
	if videoPath == "" {
		return "", false
	}
	candidate := strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".srt"
	if candidate == videoPath {
		return "", false
	}
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return "", false
	}
	return candidate, true
}

// Len reports the number of parsed cues.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.cues)
}

// Cues returns a copy of the parsed cues.
func (s *Store) Cues() []Cue {
	if s == nil {
		return nil
	}
	out := make([]Cue, len(s.cues))
	copy(out, s.cues)
	return out
}

// ActiveAt returns the text of the first cue whose [Start, End] contains t.
// Overlapping cues are not merged: the earlier one in the file wins.
func (s *Store) ActiveAt(t float64) (string, bool) {
	if s == nil {
		return "", false
	}
	for _, c := range s.cues {
		if c.Start <= t && t <= c.End {
			return c.Text, true
		}
	}
	return "", false
}
