package device

import (
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Fallback size used when the output is not a terminal.
const (
	DefaultCols = 80
	DefaultRows = 24
)

// Terminal is the output device frames are written to.
type Terminal struct {
	mu      sync.Mutex
	out     io.Writer
	fd      int
	tty     bool
	syncOut bool
}

// NewTerminal wraps f. When f is a console, escape processing is enabled and
// size queries go to its descriptor.
func NewTerminal(f *os.File) *Terminal {
	t := &Terminal{out: f, fd: -1}
	if f != nil && term.IsTerminal(int(f.Fd())) {
		t.fd = int(f.Fd())
		t.tty = true
		prepareConsole(f)
		t.syncOut = supportsSyncOutput
	}
	return t
}

// NewWriterTerminal wraps a plain writer. It always reports the fallback size.
func NewWriterTerminal(w io.Writer) *Terminal {
	return &Terminal{out: w, fd: -1}
}

// IsTerminal reports whether output goes to an interactive terminal.
func (t *Terminal) IsTerminal() bool { return t.tty }

// Size queries the current size in character cells. It is cheap enough to call
// once per frame, so resizes are picked up on the next frame.
func (t *Terminal) Size() (cols, rows int) {
	if t.tty {
		if c, r, err := term.GetSize(t.fd); err == nil && c > 0 && r > 0 {
			return c, r
		}
	}
	return DefaultCols, DefaultRows
}

// HideCursor hides the cursor and clears the screen. The returned function
// resets attributes and shows the cursor again; calling it more than once is
// harmless, so it can be deferred and also called on an explicit exit path.
func (t *Terminal) HideCursor() (restore func()) {
	t.write("\x1b[?25l\x1b[2J\x1b[H")
	var once sync.Once
	return func() {
		once.Do(func() {
			seq := "\x1b[0m\x1b[?25h\r\n"
			if t.syncOut {
				seq = "\x1b[?2026l" + seq
			}
			t.write(seq)
		})
	}
}

// WriteFrame writes one composed screen update. On terminals that support
// synchronized output the update is applied atomically.
func (t *Terminal) WriteFrame(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.syncOut {
		if _, err := io.WriteString(t.out, "\x1b[?2026h"); err != nil {
			return err
		}
	}
	if _, err := t.out.Write(p); err != nil {
		return err
	}
	if t.syncOut {
		if _, err := io.WriteString(t.out, "\x1b[?2026l"); err != nil {
			return err
		}
	}
	return nil
}

func (t *Terminal) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.out, s)
}

// SupportsColor guesses from $TERM whether 256-color escapes will render.
func SupportsColor(termEnv string) bool {
	if colorAlwaysAvailable {
		return true
	}
	return strings.Contains(strings.ToLower(termEnv), "color")
}
