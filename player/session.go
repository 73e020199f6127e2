package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/svanichkin/termplay/codec"
	"github.com/svanichkin/termplay/device"
	"github.com/svanichkin/termplay/logs"
	"github.com/svanichkin/termplay/pacing"
	"github.com/svanichkin/termplay/subtitle"
	"github.com/svanichkin/termplay/ui"
)

// Config describes one playback.
type Config struct {
	Video        string
	Mode         codec.Mode
	TargetFPS    float64
	SRTPath      string
	Audio        bool
	AudioPlayer  string
	StartupDelay time.Duration
	Record       string
	TermEnv      string
}

// Display is the terminal sink frames are written to.
type Display interface {
	Size() (cols, rows int)
	HideCursor() (restore func())
	WriteFrame(p []byte) error
}

// AudioProcess is a running audio player owned by the session.
type AudioProcess interface {
	Pid() int
	Stop()
}

// Result summarizes a finished session.
type Result struct {
	ID        string
	State     pacing.State
	Stats     pacing.Stats
	Subtitles int
}

// Session plays one video to a Display. It owns the frame source, the audio
// process and the recording for its whole lifetime.
type Session struct {
	cfg     Config
	out     io.Writer
	display Display
	clock   pacing.Clock
	log     *zap.Logger

	openSource  func(path string) (pacing.Source, error)
	findPlayer  func(configured string) (string, error)
	startPlayer func(player, file string) (AudioProcess, error)
}

// Option customizes a Session.
type Option func(*Session)

// WithOutput sets where the banner and messages go (stdout by default).
func WithOutput(w io.Writer) Option { return func(s *Session) { s.out = w } }

// WithDisplay sets the frame sink (stdout terminal by default).
func WithDisplay(d Display) Option { return func(s *Session) { s.display = d } }

// WithClock replaces the wall clock.
func WithClock(c pacing.Clock) Option { return func(s *Session) { s.clock = c } }

// WithLogger sets the logger (the process logger by default).
func WithLogger(l *zap.Logger) Option { return func(s *Session) { s.log = l } }

// WithSourceOpener replaces the video decoder.
func WithSourceOpener(fn func(path string) (pacing.Source, error)) Option {
	return func(s *Session) { s.openSource = fn }
}

// WithAudio replaces player discovery and launch.
func WithAudio(find func(string) (string, error), start func(player, file string) (AudioProcess, error)) Option {
	return func(s *Session) {
		if find != nil {
			s.findPlayer = find
		}
		if start != nil {
			s.startPlayer = start
		}
	}
}

// New prepares a session.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:   cfg,
		out:   os.Stdout,
		clock: pacing.SystemClock,
		openSource: func(path string) (pacing.Source, error) {
			return device.OpenVideo(path)
		},
		findPlayer: device.FindAudioPlayer,
		startPlayer: func(p, f string) (AudioProcess, error) {
			a, err := device.StartAudio(p, f)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.display == nil {
		s.display = device.NewTerminal(os.Stdout)
	}
	if s.log == nil {
		s.log = logs.L()
	}
	return s
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// Run plays the video until it ends, ctx is cancelled or decoding fails.
// The frame source, audio player and recording are released on every path,
// and the cursor is shown again if it was hidden. Interruption is not an
// error.
func (s *Session) Run(ctx context.Context) (Result, error) {
	res := Result{ID: uuid.NewString(), State: pacing.Failed}
	base := filepath.Base(s.cfg.Video)
	log := s.log.With(zap.String("session", res.ID), zap.String("video", base))
	log.Info("session starting",
		zap.Stringer("mode", s.cfg.Mode),
		zap.Float64("fps", s.cfg.TargetFPS),
		zap.Bool("audio", s.cfg.Audio))

	s.preflightWarnings(log)
	store := s.loadSubtitles(log)
	res.Subtitles = store.Len()

	src, err := s.openSource(s.cfg.Video)
	if err != nil {
		log.Error("open source failed", zap.Error(err))
		s.printf("Error: %v\n", err)
		return res, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Warn("close source", zap.Error(cerr))
		}
	}()

	engine, err := pacing.New(src, s.clock, s.cfg.TargetFPS)
	if err != nil {
		log.Error("pacing setup failed", zap.Error(err))
		s.printf("Error: %v\n", err)
		return res, err
	}
	s.printBanner(base, src.Info(), engine.TargetFPS())

	audio := s.launchAudio(log)
	if audio != nil {
		defer audio.Stop()
	}

	if err := s.clock.Sleep(ctx, s.cfg.StartupDelay); err != nil {
		res.State = pacing.Interrupted
		s.finish(log, res, audio, nil)
		return res, nil
	}

	rec := s.openRecording(log, base)
	if rec != nil {
		defer func() {
			if cerr := rec.Close(); cerr != nil {
				log.Warn("close recording", zap.Error(cerr))
			}
		}()
	}

	restore := s.display.HideCursor()
	defer restore()

	emit := s.emitter(log, store, rec)
	st, runErr := engine.Run(ctx, emit)
	restore()

	res.State = st
	res.Stats = engine.Stats()
	s.finish(log, res, audio, runErr)
	if st == pacing.Interrupted {
		return res, nil
	}
	return res, runErr
}

func (s *Session) preflightWarnings(log *zap.Logger) {
	if !device.IsSupportedExtension(s.cfg.Video) {
		ext := filepath.Ext(s.cfg.Video)
		s.printf("Warning: File extension '%s' might not be supported\n", ext)
		s.printf("Supported formats: %s\n", supportedFormats())
		log.Warn("unrecognized extension", zap.String("ext", ext))
	}
	if s.cfg.Mode.Colored() && !device.SupportsColor(s.cfg.TermEnv) {
		s.printf("Warning: Your terminal might not support colors properly\n")
		log.Warn("terminal may lack color support", zap.String("term", s.cfg.TermEnv))
	}
}

func supportedFormats() string {
	names := make([]string, 0, len(device.SupportedExtensions))
	for _, ext := range device.SupportedExtensions {
		names = append(names, strings.TrimPrefix(ext, "."))
	}
	return strings.Join(names, ", ")
}

func (s *Session) loadSubtitles(log *zap.Logger) *subtitle.Store {
	path := s.cfg.SRTPath
	if path == "" {
		found, ok := subtitle.Discover(s.cfg.Video)
		if !ok {
			return nil
		}
		path = found
		s.printf("Auto-detected SRT file: %s\n", path)
	}
	store, err := subtitle.Load(path)
	if err != nil {
		s.printf("Warning: %v, playing without subtitles\n", err)
		log.Warn("subtitles unavailable", zap.String("path", path), zap.Error(err))
		return nil
	}
	if store.Len() == 0 {
		s.printf("No subtitles loaded\n")
		log.Warn("no subtitle cues parsed", zap.String("path", path))
		return nil
	}
	s.printf("Loaded %d subtitles from %s\n", store.Len(), path)
	log.Info("subtitles loaded", zap.String("path", path), zap.Int("cues", store.Len()))
	return store
}

func (s *Session) printBanner(base string, info pacing.Info, target float64) {
	s.printf("Playing video: %s\n", base)
	s.printf("Total frames: %d\n", info.Frames)
	s.printf("Frame rate: %s FPS\n", strconv.FormatFloat(info.FPS, 'f', -1, 64))
	if target != info.FPS {
		s.printf("Playback rate: %s FPS\n", strconv.FormatFloat(target, 'f', -1, 64))
	}
	if s.cfg.Mode.Colored() {
		s.printf("Color mode: ENABLED\n")
		if s.cfg.Mode == codec.ModeBlocks {
			s.printf("Using block characters for better color representation\n")
		}
	} else {
		s.printf("Color mode: DISABLED\n")
	}
	s.printf("Press Ctrl+C to stop playback\n\n")
}

func (s *Session) launchAudio(log *zap.Logger) AudioProcess {
	if !s.cfg.Audio {
		return nil
	}
	player, err := s.findPlayer(s.cfg.AudioPlayer)
	if err != nil {
		s.printf("Warning: %v, playing without audio\n", err)
		log.Warn("audio player not found", zap.Error(err))
		return nil
	}
	a, err := s.startPlayer(player, s.cfg.Video)
	if err != nil {
		s.printf("Warning: %v, playing without audio\n", err)
		log.Warn("audio player failed to start", zap.String("player", player), zap.Error(err))
		return nil
	}
	log.Info("audio player started", zap.String("player", player), zap.Int("pid", a.Pid()))
	return a
}

func (s *Session) openRecording(log *zap.Logger, title string) *codec.CastWriter {
	if s.cfg.Record == "" {
		return nil
	}
	cols, rows := s.display.Size()
	h := codec.CastHeader{Width: cols, Height: rows, Title: title}
	if s.cfg.TermEnv != "" {
		h.Env = map[string]string{"TERM": s.cfg.TermEnv}
	}
	rec, err := codec.CreateCast(s.cfg.Record, h)
	if err != nil {
		s.printf("Warning: recording disabled: %v\n", err)
		log.Warn("recording disabled", zap.String("path", s.cfg.Record), zap.Error(err))
		return nil
	}
	log.Info("recording", zap.String("path", s.cfg.Record))
	return rec
}

func (s *Session) emitter(log *zap.Logger, store *subtitle.Store, rec *codec.CastWriter) pacing.EmitFunc {
	recording := rec != nil
	return func(_ context.Context, tick pacing.Tick) error {
		cols, rows := s.display.Size()
		tf := codec.Render(tick.Frame, cols, ui.FrameRows(rows), s.cfg.Mode)

		var lines []string
		if text, ok := store.ActiveAt(tick.Playtime); ok {
			lines = ui.WrapSubtitle(text, cols, ui.MaxSubtitleLines)
		}
		buf := ui.Compose(tf, lines, ui.Status{
			Emitted:     tick.Stats.Emitted,
			Total:       tick.Stats.Total,
			Dropped:     tick.Stats.Dropped,
			TargetFPS:   tick.Stats.TargetFPS,
			MeasuredFPS: tick.Stats.MeasuredFPS,
			Playtime:    tick.Playtime,
			Cols:        cols,
			Rows:        rows,
			Sleep:       tick.Stats.Sleep,
			Behind:      tick.Stats.Behind,
		}, cols, rows)

		if err := s.display.WriteFrame(buf); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		if recording {
			if err := rec.WriteFrame(tick.Playtime, buf); err != nil {
				log.Warn("recording stopped", zap.Error(err))
				recording = false
			}
		}
		return nil
	}
}

func (s *Session) finish(log *zap.Logger, res Result, audio AudioProcess, err error) {
	fields := []zap.Field{
		zap.Stringer("state", res.State),
		zap.Int("emitted", res.Stats.Emitted),
		zap.Int("dropped", res.Stats.Dropped),
		zap.Int("hard_skips", res.Stats.HardSkips),
		zap.Int("soft_skips", res.Stats.SoftSkips),
	}
	switch res.State {
	case pacing.Exhausted:
		s.printf("\nVideo playback completed!\n")
		log.Info("playback completed", fields...)
	case pacing.Interrupted:
		s.printf("\nPlayback interrupted by user\n")
		if audio != nil {
			s.printf("Stopping audio player pid: %d\n", audio.Pid())
		}
		log.Info("playback interrupted", fields...)
	default:
		if err == nil {
			err = errors.New("playback failed")
		}
		s.printf("\nError during video playback: %v\n", err)
		log.Error("playback failed", append(fields, zap.Error(err))...)
	}
}
