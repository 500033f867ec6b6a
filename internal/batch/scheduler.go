// Package batch turns a stream of local segments into rate-limited network
// batches.
//
// Segments are never dropped. A segment arriving sooner than StrokeThrottle
// after the last accepted one is held and retried; accepted segments are
// buffered and flushed when the buffer is full, when the last flush is older
// than UrgentSlack, or when the BatchDelay timer fires. Ending a gesture
// drains everything held and flushes.
package batch

import (
	"math"
	"sync"
	"time"

	"github.com/golang/glog"

	"LiveBoard/internal/state"
)

type Config struct {
	StrokeThrottle   time.Duration
	BatchSize        int
	BatchDelay       time.Duration
	UrgentSlack      time.Duration
	DensifyThreshold float64
	StaggerDelay     time.Duration
}

func DefaultConfig() Config {
	return Config{
		StrokeThrottle:   16 * time.Millisecond,
		BatchSize:        10,
		BatchDelay:       30 * time.Millisecond,
		UrgentSlack:      50 * time.Millisecond,
		DensifyThreshold: 20,
		StaggerDelay:     8 * time.Millisecond,
	}
}

// Emitter receives flushed batches in flush order.
type Emitter func(batch []state.MicroStroke)

type Stats struct {
	// Accepted counts segments that passed the throttle.
	Accepted int
	// Held counts throttle deferrals; a segment may be held more than once.
	Held int
	// Drained counts held segments pushed out by a gesture end.
	Drained int
	// Flushed counts segments handed to the emitter.
	Flushed int
	Batches int
}

type Scheduler struct {
	cfg   Config
	clock Clock

	mu         sync.Mutex
	emitMu     sync.Mutex
	emit       Emitter
	strokeID   *state.StrokeID
	nextSeq    uint32
	held       []state.MicroStroke
	retry      Timer
	buffer     []state.MicroStroke
	flushTimer Timer
	lastSent   time.Time
	sentAny    bool
	lastFlush  time.Time
	staggered  map[int]Timer
	nextTask   int
	stats      Stats
	closed     bool
}

// New creates a scheduler. emit may be nil, in which case flushes only
// update the stats.
func New(cfg Config, clock Clock, emit Emitter) *Scheduler {
	if clock == nil {
		clock = WallClock()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Scheduler{
		cfg:       cfg,
		clock:     clock,
		emit:      emit,
		staggered: make(map[int]Timer),
	}
}

func (s *Scheduler) SetEmitter(emit Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = emit
}

// BeginGesture tags subsequent segments with id and sequence numbers from 0.
func (s *Scheduler) BeginGesture(id state.StrokeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strokeID = &id
	s.nextSeq = 0
}

// Send schedules a segment. Inside a gesture it is stamped with the stroke id
// and the next sequence number. Segments longer than DensifyThreshold are
// split; the first piece goes now and the rest follow StaggerDelay apart.
func (s *Scheduler) Send(seg state.MicroStroke) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	parts := []state.MicroStroke{seg}
	if !seg.IsFill() && s.cfg.DensifyThreshold > 0 && seg.Length() > s.cfg.DensifyThreshold {
		parts = split(seg, int(math.Ceil(seg.Length()/s.cfg.DensifyThreshold)))
		glog.V(2).Infof("[batch] densify length=%.1f into %d", seg.Length(), len(parts))
	}
	for i := range parts {
		s.stamp(&parts[i])
	}

	for i, part := range parts[1:] {
		s.schedule(time.Duration(i+1)*s.cfg.StaggerDelay, part)
	}
	s.release(s.submit(parts[0]))
}

// EndGesture drains held segments into the buffer and flushes it without
// waiting for the throttle. Staggered pieces already scheduled still fire.
func (s *Scheduler) EndGesture() {
	s.mu.Lock()
	s.strokeID = nil
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	if len(s.held) > 0 {
		s.stats.Drained += len(s.held)
		s.buffer = append(s.buffer, s.held...)
		s.held = nil
	}
	var batch []state.MicroStroke
	if len(s.buffer) > 0 {
		batch = s.take(s.clock.Now())
	}
	s.release(batch)
}

// Flush emits the buffer now. Held segments stay held.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	var batch []state.MicroStroke
	if len(s.buffer) > 0 {
		batch = s.take(s.clock.Now())
	}
	s.release(batch)
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Pending returns the number of held plus buffered segments.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held) + len(s.buffer)
}

// Close cancels every timer. Later sends are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.staggered {
		t.Stop()
		delete(s.staggered, id)
	}
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
}

func (s *Scheduler) stamp(seg *state.MicroStroke) {
	if s.strokeID == nil {
		return
	}
	id, seq := *s.strokeID, s.nextSeq
	seg.StrokeID = &id
	seg.Sequence = &seq
	s.nextSeq++
}

func (s *Scheduler) schedule(d time.Duration, seg state.MicroStroke) {
	id := s.nextTask
	s.nextTask++
	s.staggered[id] = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.staggered, id)
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.release(s.submit(seg))
	})
}

// submit runs seg through the throttle. Caller holds mu.
func (s *Scheduler) submit(seg state.MicroStroke) []state.MicroStroke {
	now := s.clock.Now()
	if len(s.held) > 0 || (s.sentAny && now.Sub(s.lastSent) < s.cfg.StrokeThrottle) {
		s.held = append(s.held, seg)
		s.stats.Held++
		s.armRetry()
		return nil
	}
	return s.accept(seg, now)
}

func (s *Scheduler) accept(seg state.MicroStroke, now time.Time) []state.MicroStroke {
	s.lastSent = now
	s.sentAny = true
	s.stats.Accepted++
	s.buffer = append(s.buffer, seg)

	if len(s.buffer) >= s.cfg.BatchSize || now.Sub(s.lastFlush) > s.cfg.UrgentSlack {
		return s.take(now)
	}
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	s.flushTimer = s.clock.AfterFunc(s.cfg.BatchDelay, s.onFlushTimer)
	return nil
}

func (s *Scheduler) take(now time.Time) []state.MicroStroke {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	batch := s.buffer
	s.buffer = nil
	s.lastFlush = now
	s.stats.Batches++
	s.stats.Flushed += len(batch)
	return batch
}

func (s *Scheduler) armRetry() {
	if s.retry == nil && !s.closed {
		s.retry = s.clock.AfterFunc(s.cfg.StrokeThrottle, s.onRetry)
	}
}

func (s *Scheduler) onRetry() {
	s.mu.Lock()
	s.retry = nil
	if len(s.held) == 0 || s.closed {
		s.mu.Unlock()
		return
	}
	var batch []state.MicroStroke
	now := s.clock.Now()
	if now.Sub(s.lastSent) >= s.cfg.StrokeThrottle {
		seg := s.held[0]
		s.held = s.held[1:]
		batch = s.accept(seg, now)
	}
	if len(s.held) > 0 {
		s.armRetry()
	}
	s.release(batch)
}

func (s *Scheduler) onFlushTimer() {
	s.mu.Lock()
	var batch []state.MicroStroke
	if len(s.buffer) > 0 {
		batch = s.take(s.clock.Now())
	}
	s.release(batch)
}

// release unlocks mu and emits batch, if any. The emit lock is taken before
// mu is released so batches reach the emitter in the order they were taken.
func (s *Scheduler) release(batch []state.MicroStroke) {
	if len(batch) == 0 {
		s.mu.Unlock()
		return
	}
	s.emitMu.Lock()
	emit := s.emit
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	if emit == nil {
		glog.V(2).Infof("[batch] no emitter, %d segments stay local", len(batch))
		return
	}
	glog.V(2).Infof("[batch] flush %d", len(batch))
	emit(batch)
}

// split cuts seg into n pieces along its line, with rounded endpoints.
func split(seg state.MicroStroke, n int) []state.MicroStroke {
	from, to := seg.From(), seg.To()
	parts := make([]state.MicroStroke, 0, n)
	prev := from
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		next := state.Point{X: from.X + (to.X-from.X)*t, Y: from.Y + (to.Y-from.Y)*t}.Round()
		if i == n {
			next = to
		}
		part := seg
		part.X1, part.Y1 = int(prev.X), int(prev.Y)
		part.X2, part.Y2 = int(next.X), int(next.Y)
		parts = append(parts, part)
		prev = next
	}
	return parts
}
