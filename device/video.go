package device

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	vidio "github.com/AlexEidt/Vidio"

	"github.com/svanichkin/termplay/codec"
	"github.com/svanichkin/termplay/logs"
	"github.com/svanichkin/termplay/pacing"
)

// SupportedExtensions lists the containers playback is known to work with.
// Other files are still attempted.
var SupportedExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv", ".webm"}

// IsSupportedExtension reports whether path has one of SupportedExtensions.
func IsSupportedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// VideoSource decodes a video file through ffmpeg, one RGBA frame at a time.
// Frames returned by Next share one buffer that is overwritten by the
// following Next, Skip or Seek.
type VideoSource struct {
	path  string
	video *vidio.Video
	frame *image.RGBA
	pos   int
	info  pacing.Info
}

var _ pacing.Source = (*VideoSource)(nil)

// OpenVideo opens path for decoding.
func OpenVideo(path string) (*VideoSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	s := &VideoSource{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *VideoSource) open() error {
	video, err := vidio.NewVideo(s.path)
	if err != nil {
		return fmt.Errorf("open video %s: %w", filepath.Base(s.path), err)
	}
	w, h := video.Width(), video.Height()
	if w <= 0 || h <= 0 {
		video.Close()
		return fmt.Errorf("open video %s: no video stream", filepath.Base(s.path))
	}
	if s.frame == nil || s.frame.Rect.Dx() != w || s.frame.Rect.Dy() != h {
		s.frame = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	if err := video.SetFrameBuffer(s.frame.Pix); err != nil {
		video.Close()
		return fmt.Errorf("open video %s: %w", filepath.Base(s.path), err)
	}
	s.video = video
	s.pos = 0
	s.info = pacing.Info{Frames: video.Frames(), FPS: video.FPS(), Width: w, Height: h}
	return nil
}

// Info returns frame count, native rate and dimensions.
func (s *VideoSource) Info() pacing.Info { return s.info }

// Next decodes the next frame. Decoder errors cannot be told apart from the
// end of the stream and both end in io.EOF.
func (s *VideoSource) Next() (codec.Frame, error) {
	if s.video == nil {
		return codec.Frame{}, io.EOF
	}
	if !s.video.Read() {
		return codec.Frame{}, s.endOfStream()
	}
	f := codec.Frame{Image: s.frame, Index: s.pos}
	s.pos++
	return f, nil
}

// Skip decodes and discards one frame.
func (s *VideoSource) Skip() error {
	if s.video == nil {
		return io.EOF
	}
	if !s.video.Read() {
		return s.endOfStream()
	}
	s.pos++
	return nil
}

// Seek positions the stream so that Next returns frame index. ffmpeg pipes
// only stream forward, so frames are decoded and dropped up to index; seeking
// backwards restarts the decoder.
func (s *VideoSource) Seek(index int) error {
	if index < 0 {
		index = 0
	}
	if index < s.pos {
		logs.LogV("[video] reopening %s to seek back from %d to %d", filepath.Base(s.path), s.pos, index)
		s.closeVideo()
		if err := s.open(); err != nil {
			return err
		}
	}
	logs.LogV("[video] seek %d -> %d", s.pos, index)
	for s.pos < index {
		if err := s.Skip(); err != nil {
			return err
		}
	}
	return nil
}

// endOfStream notes streams that stop before the advertised frame count,
// which is how a truncated or undecodable file shows up.
func (s *VideoSource) endOfStream() error {
	if s.pos < s.info.Frames {
		logs.LogV("[video] %s ended at frame %d of %d", filepath.Base(s.path), s.pos, s.info.Frames)
	}
	return io.EOF
}

// Close stops the decoder.
func (s *VideoSource) Close() error {
	s.closeVideo()
	return nil
}

func (s *VideoSource) closeVideo() {
	if s.video != nil {
		s.video.Close()
		s.video = nil
	}
}
