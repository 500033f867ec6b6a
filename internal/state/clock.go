package state

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// StrokeID identifies one gesture. It packs a millisecond timestamp with a
// 10 bit random tiebreak so that gestures started at the same moment on
// different clients rarely collide, and stays below 2^53 so that it
// survives a trip through JSON numbers.
type StrokeID uint64

const tiebreakBits = 10

// Time returns the coarse start time encoded in the id.
func (id StrokeID) Time() time.Time {
	return time.UnixMilli(int64(id >> tiebreakBits))
}

// IDSource hands out stroke ids for one client. Ids from one source are
// strictly increasing even when the wall clock stalls.
type IDSource struct {
	last atomic.Uint64
	now  func() time.Time
}

func NewIDSource() *IDSource {
	return &IDSource{now: time.Now}
}

func (s *IDSource) Next() StrokeID {
	ms := uint64(s.now().UnixMilli())
	id := ms<<tiebreakBits | rand.Uint64N(1<<tiebreakBits)
	for {
		last := s.last.Load()
		next := id
		if next <= last {
			next = last + 1
		}
		if s.last.CompareAndSwap(last, next) {
			return StrokeID(next)
		}
	}
}

// NewUserID returns a fresh id for a participant.
func NewUserID() string {
	return uuid.NewString()
}
