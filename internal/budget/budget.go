package budget

import (
	"sync/atomic"

	"github.com/jonboulle/clockwork"
)

// Budget tracks daily metered API call usage with automatic reset at UTC day
// boundaries. It is a best-effort soft limiter: concurrent callers racing a
// day boundary may transiently overshoot by a few calls, which is tolerated.
//
// Construct one instance at process start and share it between the scheduler
// and the backfill engine.
type Budget struct {
	dailyLimit int64
	callsToday atomic.Int64
	currentDay atomic.Int64
	clock      clockwork.Clock
}

// New creates a budget with the given daily call limit.
func New(dailyLimit int64) *Budget {
	return NewWithClock(dailyLimit, clockwork.NewRealClock())
}

// NewWithClock creates a budget with an injected clock, used by tests to
// simulate day rollovers.
func NewWithClock(dailyLimit int64, clock clockwork.Clock) *Budget {
	b := &Budget{
		dailyLimit: dailyLimit,
		clock:      clock,
	}
	b.currentDay.Store(b.utcDayNow())
	return b
}

// RecordCall records one API call and reports whether it was within budget at
// the moment of increment. The increment always happens, even over budget, so
// UsedToday reflects true attempted volume.
func (b *Budget) RecordCall() bool {
	b.maybeReset()
	prev := b.callsToday.Add(1) - 1
	return prev < b.dailyLimit
}

// Remaining returns the number of calls left today, never negative.
func (b *Budget) Remaining() int64 {
	b.maybeReset()
	used := b.callsToday.Load()
	if used >= b.dailyLimit {
		return 0
	}
	return b.dailyLimit - used
}

// UsedToday returns the number of calls recorded today, including overflow.
func (b *Budget) UsedToday() int64 {
	b.maybeReset()
	return b.callsToday.Load()
}

// Limit returns the configured daily limit.
func (b *Budget) Limit() int64 {
	return b.dailyLimit
}

// maybeReset zeroes the counter when the UTC day has changed. Exactly one
// concurrent caller wins the compare-and-swap and performs the reset; losers
// observe the already-reset counter.
func (b *Budget) maybeReset() {
	today := b.utcDayNow()
	stored := b.currentDay.Load()
	if today != stored {
		if b.currentDay.CompareAndSwap(stored, today) {
			b.callsToday.Store(0)
		}
	}
}

func (b *Budget) utcDayNow() int64 {
	return b.clock.Now().UTC().Unix() / 86400
}
