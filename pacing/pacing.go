package pacing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/svanichkin/termplay/codec"
)

// State is the lifecycle state of a playback loop.
type State int

const (
	Running State = iota
	Interrupted
	Exhausted
	Failed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Interrupted:
		return "interrupted"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Info is the stream metadata reported by a frame source.
type Info struct {
	Frames int
	FPS    float64
	Width  int
	Height int
}

// Source supplies decoded frames in stream order. Next and Skip return io.EOF
// once the stream is exhausted. The frame returned by Next is only valid until
// the following call.
type Source interface {
	Info() Info
	Next() (codec.Frame, error)
	Skip() error
	// Seek makes index the next frame returned. Implementations without
	// random access may decode forward to reach it, at the cost of a Skip per frame.
	Seek(index int) error
	Close() error
}

// Clock abstracts wall time so the loop can run against virtual time in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Correction is the drift response chosen for one iteration.
type Correction int

const (
	NoCorrection Correction = iota
	SoftSkip
	HardSkip
)

func (c Correction) String() string {
	switch c {
	case SoftSkip:
		return "soft"
	case HardSkip:
		return "hard"
	default:
		return "none"
	}
}

// hardSkipFactor scales the drift threshold above which the source is seeked.
const hardSkipFactor = 10

// Decision is the outcome of Plan for one iteration.
type Decision struct {
	Sleep      time.Duration
	Drift      float64
	Target     int
	Correction Correction
}

// Threshold is the drift tolerated before frames are dropped.
func Threshold(targetFPS float64) float64 {
	return 1 / targetFPS * 0.98
}

// Plan decides how long to sleep and whether to skip, given the stream
// position of the frame about to be shown and the wall time elapsed since
// the session started. Both values must come from the same clock sample.
func Plan(playtime, wall, sourceFPS, targetFPS float64) Decision {
	sleep := math.Max(0, playtime-wall-1/targetFPS)
	d := Decision{
		Sleep:  time.Duration(sleep * float64(time.Second)),
		Drift:  wall - playtime,
		Target: int(math.Floor(wall * sourceFPS)),
	}
	t := Threshold(targetFPS)
	switch {
	case d.Drift > hardSkipFactor*t:
		d.Correction = HardSkip
	case d.Drift > t:
		d.Correction = SoftSkip
	}
	return d
}

// Stats is the loop's running account, copied into every Tick.
type Stats struct {
	Emitted     int
	Dropped     int
	Total       int
	TargetFPS   float64
	MeasuredFPS float64
	Sleep       time.Duration
	Behind      bool
	HardSkips   int
	SoftSkips   int
}

// Tick is handed to the emit callback for every frame that is shown.
type Tick struct {
	Frame    codec.Frame
	Index    int
	Playtime float64
	Stats    Stats
}

// EmitFunc renders and writes one frame.
type EmitFunc func(ctx context.Context, tick Tick) error

// Engine paces frames from a Source against a target rate. It is not safe
// for concurrent use: one goroutine owns the loop and its statistics.
type Engine struct {
	src       Source
	clock     Clock
	sourceFPS float64
	targetFPS float64
	total     int

	state  State
	err    error
	start  time.Time
	stats  Stats
	window Window
}

// New prepares an engine. targetFPS <= 0 selects the source's native rate.
func New(src Source, clock Clock, targetFPS float64) (*Engine, error) {
	if src == nil {
		return nil, errors.New("nil frame source")
	}
	if clock == nil {
		clock = SystemClock
	}
	info := src.Info()
	if info.FPS <= 0 || math.IsNaN(info.FPS) || math.IsInf(info.FPS, 0) {
		return nil, fmt.Errorf("source reports invalid frame rate %v", info.FPS)
	}
	if targetFPS <= 0 {
		targetFPS = info.FPS
	}
	e := &Engine{
		src:       src,
		clock:     clock,
		sourceFPS: info.FPS,
		targetFPS: targetFPS,
		total:     info.Frames,
	}
	e.reset()
	return e, nil
}

func (e *Engine) reset() {
	e.state = Running
	e.err = nil
	e.start = e.clock.Now()
	e.stats = Stats{Total: e.total, TargetFPS: e.targetFPS}
	e.window = NewWindow(int(math.Round(e.targetFPS)))
}

// SourceFPS is the native rate used to convert frame counts to stream time.
func (e *Engine) SourceFPS() float64 { return e.sourceFPS }

// TargetFPS is the requested playback rate.
func (e *Engine) TargetFPS() float64 { return e.targetFPS }

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Err returns the error that ended the loop, if any.
func (e *Engine) Err() error { return e.err }

// Stats returns a snapshot of the running statistics.
func (e *Engine) Stats() Stats { return e.stats }

// Run resets the statistics and loops until a terminal state is reached.
func (e *Engine) Run(ctx context.Context, emit EmitFunc) (State, error) {
	e.reset()
	for {
		st, err := e.Step(ctx, emit)
		if st != Running {
			return st, err
		}
	}
}

// Step runs one iteration: pull, sleep, emit, correct drift.
func (e *Engine) Step(ctx context.Context, emit EmitFunc) (State, error) {
	if e.state != Running {
		return e.state, e.err
	}
	if err := ctx.Err(); err != nil {
		return e.finish(Interrupted, err)
	}

	frame, err := e.src.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return e.finish(Exhausted, nil)
		}
		return e.finish(Failed, fmt.Errorf("decode frame %d: %w", e.stats.Emitted, err))
	}

	playtime := float64(e.stats.Emitted) / e.sourceFPS
	now := e.clock.Now()
	wall := now.Sub(e.start).Seconds()
	d := Plan(playtime, wall, e.sourceFPS, e.targetFPS)

	e.stats.Sleep = d.Sleep
	if err := e.clock.Sleep(ctx, d.Sleep); err != nil {
		return e.finish(Interrupted, err)
	}

	index := e.stats.Emitted
	e.stats.Emitted++
	if fps, ok := e.window.Add(wall); ok {
		e.stats.MeasuredFPS = fps
	}
	e.stats.Behind = d.Target > e.stats.Emitted

	if emit != nil {
		tick := Tick{Frame: frame, Index: index, Playtime: playtime, Stats: e.stats}
		if err := emit(ctx, tick); err != nil {
			if errors.Is(err, context.Canceled) {
				return e.finish(Interrupted, err)
			}
			return e.finish(Failed, fmt.Errorf("emit frame %d: %w", index, err))
		}
	}

	if err := e.correct(ctx, d); err != nil {
		return e.finish(Failed, err)
	}
	return Running, nil
}

func (e *Engine) correct(ctx context.Context, d Decision) error {
	target := d.Target
	if e.total > 0 && target > e.total {
		target = e.total
	}
	if target <= e.stats.Emitted {
		return nil
	}
	switch d.Correction {
	case HardSkip:
		if err := e.src.Seek(target); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("seek to frame %d: %w", target, err)
		}
		e.stats.Dropped += target - e.stats.Emitted
		e.stats.Emitted = target
		e.stats.HardSkips++
	case SoftSkip:
		e.stats.SoftSkips++
		for e.stats.Emitted < target {
			if ctx.Err() != nil {
				return nil
			}
			if err := e.src.Skip(); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("skip frame %d: %w", e.stats.Emitted, err)
			}
			e.stats.Emitted++
			e.stats.Dropped++
		}
	}
	return nil
}

func (e *Engine) finish(st State, err error) (State, error) {
	e.state = st
	e.err = err
	return st, err
}
