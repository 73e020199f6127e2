package codec

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

var zstdEncoderLevel = zstd.SpeedDefault

// CastHeader is the first line of an asciicast v2 recording.
type CastHeader struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// CastWriter appends composed terminal buffers as asciicast "o" events.
// Output is zstd-compressed when created with compress set.
type CastWriter struct {
	buf    *bufio.Writer
	enc    *zstd.Encoder
	file   io.Closer
	closed bool
}

// CreateCast creates path and writes the header. Paths ending in ".zst" are compressed.
func CreateCast(path string, h CastHeader) (*CastWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	cw, err := NewCastWriter(f, strings.HasSuffix(strings.ToLower(path), ".zst"), h)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	cw.file = f
	return cw, nil
}

// NewCastWriter wraps w and writes the header line immediately.
func NewCastWriter(w io.Writer, compress bool, h CastHeader) (*CastWriter, error) {
	cw := &CastWriter{}
	out := w
	if compress {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstdEncoderLevel))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		cw.enc = enc
		out = enc
	}
	cw.buf = bufio.NewWriterSize(out, 64*1024)

	if h.Version == 0 {
		h.Version = 2
	}
	if h.Timestamp == 0 {
		h.Timestamp = time.Now().Unix()
	}
	if err := cw.writeLine(h); err != nil {
		return nil, err
	}
	return cw, nil
}

// WriteFrame records data as an output event at the given stream second.
func (c *CastWriter) WriteFrame(at float64, data []byte) error {
	if c == nil || c.closed {
		return nil
	}
	if at < 0 {
		at = 0
	}
	return c.writeLine([]any{at, "o", string(data)})
}

func (c *CastWriter) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := c.buf.Write(b); err != nil {
		return err
	}
	return c.buf.WriteByte('\n')
}

// Close flushes, finishes the zstd frame and closes the file if owned.
func (c *CastWriter) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	err := c.buf.Flush()
	if c.enc != nil {
		if cerr := c.enc.Close(); err == nil {
			err = cerr
		}
	}
	if c.file != nil {
		if cerr := c.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
