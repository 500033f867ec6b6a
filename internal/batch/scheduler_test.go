package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiveBoard/internal/state"
)

type recorder struct {
	batches [][]state.MicroStroke
}

func (r *recorder) emit(batch []state.MicroStroke) {
	r.batches = append(r.batches, append([]state.MicroStroke(nil), batch...))
}

func (r *recorder) all() []state.MicroStroke {
	var out []state.MicroStroke
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func (r *recorder) sizes() []int {
	var out []int
	for _, b := range r.batches {
		out = append(out, len(b))
	}
	return out
}

func seg(x int) state.MicroStroke {
	return state.NewSegment(state.ToolBrush, 1, 3, state.Point{X: float64(x), Y: 0}, state.Point{X: float64(x + 1), Y: 0}, "#FF0000", nil, nil)
}

func testConfig() Config {
	return Config{
		StrokeThrottle:   10 * time.Millisecond,
		BatchSize:        10,
		BatchDelay:       30 * time.Millisecond,
		UrgentSlack:      50 * time.Millisecond,
		DensifyThreshold: 20,
		StaggerDelay:     5 * time.Millisecond,
	}
}

func TestScheduler_ThrottleBoundsTransmission(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	rec := &recorder{}
	cfg := testConfig()
	s := New(cfg, clock, rec.emit)

	s.BeginGesture(42)
	step := 900 * time.Microsecond
	for i := 0; i < 50; i++ {
		if i > 0 {
			clock.Advance(step)
		}
		s.Send(seg(i))
	}
	clock.Advance(step)

	window := 50 * step
	require.Less(t, window, cfg.StrokeThrottle*10)
	stats := s.Stats()
	assert.LessOrEqual(t, stats.Accepted, int(window/cfg.StrokeThrottle)+1)
	assert.Greater(t, stats.Accepted, 0)

	s.EndGesture()
	sent := rec.all()
	require.Len(t, sent, 50)
	for i, m := range sent {
		require.True(t, m.Ordered())
		assert.Equal(t, state.StrokeID(42), *m.StrokeID)
		assert.Equal(t, uint32(i), *m.Sequence)
		assert.Equal(t, i, m.X1)
	}
	assert.Equal(t, 50-stats.Accepted, s.Stats().Drained)
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_HeldSegmentsRetryInOrder(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	rec := &recorder{}
	cfg := testConfig()
	cfg.BatchSize = 1
	s := New(cfg, clock, rec.emit)

	s.BeginGesture(1)
	for i := 0; i < 4; i++ {
		s.Send(seg(i))
	}
	assert.Equal(t, []int{1}, rec.sizes())

	clock.Advance(35 * time.Millisecond)
	assert.Len(t, rec.batches, 4)
	for i, m := range rec.all() {
		assert.Equal(t, uint32(i), *m.Sequence)
	}
	assert.Equal(t, 4, s.Stats().Accepted)
}

func TestScheduler_FlushOnBatchSize(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	rec := &recorder{}
	cfg := testConfig()
	cfg.StrokeThrottle = 0
	cfg.BatchSize = 3
	s := New(cfg, clock, rec.emit)

	// the first segment is urgent: nothing was flushed for a long time
	s.Send(seg(0))
	assert.Equal(t, []int{1}, rec.sizes())

	s.Send(seg(1))
	s.Send(seg(2))
	assert.Equal(t, []int{1}, rec.sizes())
	s.Send(seg(3))
	assert.Equal(t, []int{1, 3}, rec.sizes())
}

func TestScheduler_DeferredFlushRearms(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	rec := &recorder{}
	cfg := testConfig()
	cfg.StrokeThrottle = 0
	s := New(cfg, clock, rec.emit)

	s.Send(seg(0))
	require.Equal(t, []int{1}, rec.sizes())

	s.Send(seg(1))
	clock.Advance(29 * time.Millisecond)
	s.Send(seg(2))
	clock.Advance(29 * time.Millisecond)
	assert.Equal(t, []int{1}, rec.sizes(), "re-arming must cancel the first timer")

	clock.Advance(1 * time.Millisecond)
	assert.Equal(t, []int{1, 2}, rec.sizes())
	assert.Equal(t, 0, clock.Pending())
}

func TestScheduler_UrgentFlush(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	rec := &recorder{}
	cfg := testConfig()
	cfg.StrokeThrottle = 0
	s := New(cfg, clock, rec.emit)

	s.Send(seg(0))
	clock.Advance(51 * time.Millisecond)
	s.Send(seg(1))
	assert.Equal(t, []int{1, 1}, rec.sizes())
}

func TestScheduler_Densify(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	rec := &recorder{}
	cfg := testConfig()
	cfg.StrokeThrottle = 0
	s := New(cfg, clock, rec.emit)

	s.BeginGesture(9)
	long := state.NewSegment(state.ToolBrush, 1, 3, state.Point{X: 0, Y: 0}, state.Point{X: 50, Y: 0}, "#FF0000", nil, nil)
	s.Send(long)
	require.Len(t, rec.all(), 1)

	// ending the gesture leaves the staggered pieces scheduled
	s.EndGesture()
	clock.Advance(100 * time.Millisecond)

	parts := rec.all()
	require.Len(t, parts, 3)
	assert.Equal(t, 0, parts[0].X1)
	assert.Equal(t, 50, parts[2].X2)
	for i, p := range parts {
		assert.Equal(t, uint32(i), *p.Sequence)
		assert.Equal(t, state.StrokeID(9), *p.StrokeID)
		if i > 0 {
			assert.Equal(t, parts[i-1].X2, p.X1)
		}
		assert.LessOrEqual(t, p.Length(), cfg.DensifyThreshold)
	}
}

func TestScheduler_NoEmitter(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	s := New(testConfig(), clock, nil)

	s.BeginGesture(3)
	for i := 0; i < 5; i++ {
		s.Send(seg(i))
	}
	s.EndGesture()
	assert.Equal(t, 5, s.Stats().Flushed)
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_UnstampedOutsideGesture(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	rec := &recorder{}
	s := New(testConfig(), clock, rec.emit)

	s.Send(seg(0))
	require.Len(t, rec.all(), 1)
	assert.False(t, rec.all()[0].Ordered())
}

func TestScheduler_Close(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	rec := &recorder{}
	s := New(testConfig(), clock, rec.emit)

	s.BeginGesture(5)
	s.Send(seg(0))
	s.Send(seg(1))
	s.Send(state.NewSegment(state.ToolBrush, 1, 3, state.Point{}, state.Point{X: 100}, "", nil, nil))
	assert.Greater(t, clock.Pending(), 0)

	s.Close()
	assert.Equal(t, 0, clock.Pending())
	s.Send(seg(2))
	clock.Advance(time.Second)
	assert.Len(t, rec.all(), 1)
}
