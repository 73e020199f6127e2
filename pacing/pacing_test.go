package pacing

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svanichkin/termplay/codec"
)

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type sliceSource struct {
	frames int
	fps    float64
	pos    int
	seeks  []int
	skips  int
	failAt int
	closed bool
}

func newSliceSource(frames int, fps float64) *sliceSource {
	return &sliceSource{frames: frames, fps: fps, failAt: -1}
}

func (s *sliceSource) Info() Info { return Info{Frames: s.frames, FPS: s.fps, Width: 4, Height: 4} }

func (s *sliceSource) Next() (codec.Frame, error) {
	if s.pos == s.failAt {
		return codec.Frame{}, errors.New("corrupt packet")
	}
	if s.pos >= s.frames {
		return codec.Frame{}, io.EOF
	}
	f := codec.NewFrame(4, 4)
	f.Index = s.pos
	s.pos++
	return f, nil
}

func (s *sliceSource) Skip() error {
	if s.pos >= s.frames {
		return io.EOF
	}
	s.pos++
	s.skips++
	return nil
}

func (s *sliceSource) Seek(index int) error {
	s.seeks = append(s.seeks, index)
	if index > s.frames {
		index = s.frames
	}
	s.pos = index
	return nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name       string
		playtime   float64
		wall       float64
		sleep      time.Duration
		target     int
		correction Correction
	}{
		{"on time", 1.0, 1.0, 0, 10, NoCorrection},
		{"ahead sleeps", 1.0, 0.5, 400 * time.Millisecond, 5, NoCorrection},
		{"slightly late", 1.0, 1.05, 0, 10, NoCorrection},
		{"soft", 0, 0.5, 0, 5, SoftSkip},
		{"hard", 0, 2.0, 0, 20, HardSkip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Plan(tt.playtime, tt.wall, 10, 10)
			assert.InDelta(t, float64(tt.sleep), float64(d.Sleep), float64(time.Microsecond))
			assert.Equal(t, tt.target, d.Target)
			assert.Equal(t, tt.correction, d.Correction)
			assert.InDelta(t, tt.wall-tt.playtime, d.Drift, 1e-9)
		})
	}
}

func TestPlanThresholdBoundary(t *testing.T) {
	th := Threshold(25)
	assert.InDelta(t, 0.0392, th, 1e-9)
	assert.Equal(t, NoCorrection, Plan(0, th, 25, 25).Correction)
	assert.Equal(t, SoftSkip, Plan(0, th*1.01, 25, 25).Correction)
	assert.Equal(t, SoftSkip, Plan(0, th*10, 25, 25).Correction)
	assert.Equal(t, HardSkip, Plan(0, th*10.1, 25, 25).Correction)
}

func TestPlanNeverSleepsNegative(t *testing.T) {
	for _, wall := range []float64{0, 0.3, 1, 5} {
		assert.GreaterOrEqual(t, Plan(0.2, wall, 30, 30).Sleep, time.Duration(0))
	}
}

func TestRunOnTimePlaysEveryFrame(t *testing.T) {
	src := newSliceSource(10, 10)
	clk := newFakeClock()
	e, err := New(src, clk, 10)
	require.NoError(t, err)

	var indices []int
	st, err := e.Run(context.Background(), func(_ context.Context, tick Tick) error {
		indices = append(indices, tick.Frame.Index)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Exhausted, st)
	assert.Equal(t, 10, e.Stats().Emitted)
	assert.Equal(t, 0, e.Stats().Dropped)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, indices)
	assert.Empty(t, src.seeks)
	assert.Zero(t, src.skips)
}

func TestRunWithSteadyRenderCostDropsNothing(t *testing.T) {
	src := newSliceSource(50, 10)
	clk := newFakeClock()
	e, err := New(src, clk, 10)
	require.NoError(t, err)

	st, err := e.Run(context.Background(), func(_ context.Context, _ Tick) error {
		clk.advance(100 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Exhausted, st)
	assert.Equal(t, 50, e.Stats().Emitted)
	assert.Zero(t, e.Stats().Dropped)
}

func TestRunHardSkip(t *testing.T) {
	src := newSliceSource(100, 10)
	clk := newFakeClock()
	e, err := New(src, clk, 10)
	require.NoError(t, err)

	shown := 0
	st, err := e.Run(context.Background(), func(_ context.Context, tick Tick) error {
		shown++
		if tick.Index == 0 {
			clk.advance(2 * time.Second)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Exhausted, st)

	stats := e.Stats()
	assert.Equal(t, []int{20}, src.seeks)
	assert.Equal(t, 18, stats.Dropped)
	assert.Equal(t, 100, stats.Emitted)
	assert.Equal(t, 1, stats.HardSkips)
	assert.Equal(t, 100-18, shown)
}

func TestRunHardSkipClampsToTotal(t *testing.T) {
	src := newSliceSource(10, 10)
	clk := newFakeClock()
	e, err := New(src, clk, 10)
	require.NoError(t, err)

	st, err := e.Run(context.Background(), func(_ context.Context, tick Tick) error {
		if tick.Index == 0 {
			clk.advance(5 * time.Second)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Exhausted, st)
	assert.Equal(t, []int{10}, src.seeks)
	assert.Equal(t, 10, e.Stats().Emitted)
	assert.Equal(t, 8, e.Stats().Dropped)
}

func TestRunSoftSkip(t *testing.T) {
	src := newSliceSource(100, 10)
	clk := newFakeClock()
	e, err := New(src, clk, 10)
	require.NoError(t, err)

	st, err := e.Run(context.Background(), func(_ context.Context, tick Tick) error {
		if tick.Index == 0 {
			clk.advance(350 * time.Millisecond)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Exhausted, st)
	assert.Empty(t, src.seeks)
	assert.Equal(t, 1, src.skips)
	assert.Equal(t, 1, e.Stats().Dropped)
	assert.Equal(t, 1, e.Stats().SoftSkips)
	assert.Equal(t, 100, e.Stats().Emitted)
}

func TestRunDropsNeverExceedEmitted(t *testing.T) {
	src := newSliceSource(200, 30)
	clk := newFakeClock()
	e, err := New(src, clk, 12)
	require.NoError(t, err)

	_, err = e.Run(context.Background(), func(_ context.Context, tick Tick) error {
		clk.advance(time.Duration(tick.Index%7) * 20 * time.Millisecond)
		assert.LessOrEqual(t, tick.Stats.Dropped, tick.Stats.Emitted)
		assert.LessOrEqual(t, tick.Stats.Emitted, tick.Stats.Total)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, e.Stats().Emitted, 200)
}

func TestRunInterruptedBeforeStart(t *testing.T) {
	src := newSliceSource(10, 10)
	e, err := New(src, newFakeClock(), 10)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := e.Run(ctx, func(context.Context, Tick) error {
		t.Fatal("emit after cancellation")
		return nil
	})
	assert.Equal(t, Interrupted, st)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, e.Stats().Emitted)
}

func TestRunInterruptedMidStream(t *testing.T) {
	src := newSliceSource(100, 10)
	e, err := New(src, newFakeClock(), 10)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st, err := e.Run(ctx, func(_ context.Context, tick Tick) error {
		if tick.Index == 2 {
			cancel()
		}
		return nil
	})
	assert.Equal(t, Interrupted, st)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, e.Stats().Emitted)
	assert.Equal(t, Interrupted, e.State())
}

func TestRunSourceFailure(t *testing.T) {
	src := newSliceSource(10, 10)
	src.failAt = 4
	e, err := New(src, newFakeClock(), 10)
	require.NoError(t, err)

	st, err := e.Run(context.Background(), nil)
	assert.Equal(t, Failed, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt packet")
	assert.Equal(t, 4, e.Stats().Emitted)
}

func TestRunEmitFailure(t *testing.T) {
	src := newSliceSource(10, 10)
	e, err := New(src, newFakeClock(), 10)
	require.NoError(t, err)

	boom := errors.New("broken pipe")
	st, err := e.Run(context.Background(), func(context.Context, Tick) error { return boom })
	assert.Equal(t, Failed, st)
	assert.ErrorIs(t, err, boom)
}

func TestTerminalStateIsSticky(t *testing.T) {
	src := newSliceSource(1, 10)
	e, err := New(src, newFakeClock(), 10)
	require.NoError(t, err)

	st, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, Exhausted, st)

	st, _ = e.Step(context.Background(), nil)
	assert.Equal(t, Exhausted, st)
}

func TestNewDefaultsTargetToSourceRate(t *testing.T) {
	e, err := New(newSliceSource(1, 23.976), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 23.976, e.TargetFPS())
	assert.Equal(t, 23.976, e.SourceFPS())

	_, err = New(newSliceSource(1, 0), nil, 10)
	assert.Error(t, err)
	_, err = New(nil, nil, 10)
	assert.Error(t, err)
}

func TestMeasuredFPSReported(t *testing.T) {
	src := newSliceSource(20, 10)
	clk := newFakeClock()
	e, err := New(src, clk, 10)
	require.NoError(t, err)

	var last float64
	_, err = e.Run(context.Background(), func(_ context.Context, tick Tick) error {
		clk.advance(100 * time.Millisecond)
		last = tick.Stats.MeasuredFPS
		return nil
	})
	require.NoError(t, err)
	assert.InDelta(t, 10, last, 0.01)
}

func TestWindow(t *testing.T) {
	w := NewWindow(3)
	_, ok := w.Add(0)
	assert.False(t, ok)
	_, ok = w.Add(0.5)
	assert.False(t, ok)
	fps, ok := w.Add(1.0)
	require.True(t, ok)
	assert.InDelta(t, 2.0, fps, 1e-9)
	assert.Zero(t, w.Len())

	_, ok = w.Add(2.0)
	assert.False(t, ok)
	assert.Equal(t, 1, w.Len())
}

func TestWindowMinimumSize(t *testing.T) {
	w := NewWindow(0)
	_, ok := w.Add(1)
	assert.False(t, ok)
	fps, ok := w.Add(1.25)
	require.True(t, ok)
	assert.InDelta(t, 4.0, fps, 1e-9)

	var zero Window
	zero.Add(0)
	fps, ok = zero.Add(0.5)
	require.True(t, ok)
	assert.InDelta(t, 2.0, fps, 1e-9)
}

func TestWindowZeroSpan(t *testing.T) {
	w := NewWindow(2)
	w.Add(3)
	_, ok := w.Add(3)
	assert.False(t, ok)
	assert.Zero(t, w.Len())
}

func TestSystemClockSleepHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := SystemClock.Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, SystemClock.Sleep(context.Background(), 0))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "exhausted", Exhausted.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.Equal(t, "hard", HardSkip.String())
}
