package ringcache

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// expiryDriver is the recurring timer that requests one ring rotation every
// generation period. It is the only thing that ever asks for a rotation. A
// tick that arrives while the driver goroutine is still blocked handing the
// previous rotation to the control actor (its queue is full) is dropped
// rather than buffered, since clockwork.Ticker - like time.Ticker - drops
// ticks the receiver isn't ready for. Rotations already accepted into the
// actor's queue are not merged: a slow actor applies each of them in turn.
type expiryDriver struct {
	ticker clockwork.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
}

// startExpiryDriver starts a goroutine that calls onTick once per period,
// using clock to source both the ticker and (in tests) to advance time
// deterministically via clockwork.FakeClock.
func startExpiryDriver(clock clockwork.Clock, period time.Duration, onTick func()) *expiryDriver {
	d := &expiryDriver{
		ticker: clock.NewTicker(period),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go func() {
		defer close(d.doneCh)
		for {
			select {
			case <-d.ticker.Chan():
				onTick()
			case <-d.stopCh:
				return
			}
		}
	}()

	return d
}

// stop cancels the ticker and waits for the driver goroutine to exit. Safe
// to call at most once.
func (d *expiryDriver) stop() {
	d.ticker.Stop()
	close(d.stopCh)
	<-d.doneCh
}
