package call

import "time"

// Clock is the in-call duration counter. It is owned by the controller's
// event loop and is not safe for concurrent use. Start is a no-op while the
// clock is already running, so the duplicate "connected" triggers cannot
// reset an in-progress call to 00:00.
type Clock struct {
	ticker  *time.Ticker
	seconds int
	running bool
}

func NewClock() *Clock {
	return &Clock{}
}

// Start resets the counter to zero and begins ticking once per second.
// Starting a running clock does nothing.
func (c *Clock) Start() {
	if c.running {
		return
	}
	c.seconds = 0
	c.running = true
	c.ticker = time.NewTicker(time.Second)
}

// C returns the tick channel, or nil when the clock is stopped. A nil
// channel blocks forever in a select, so the controller can list it
// unconditionally.
func (c *Clock) C() <-chan time.Time {
	if !c.running {
		return nil
	}
	return c.ticker.C
}

// Tick advances the counter by one second and returns the new total.
func (c *Clock) Tick() int {
	c.seconds++
	return c.seconds
}

// Stop halts ticking. The counter keeps its final value. Idempotent.
func (c *Clock) Stop() {
	if !c.running {
		return
	}
	c.running = false
	c.ticker.Stop()
}

// Seconds returns the elapsed whole seconds counted so far.
func (c *Clock) Seconds() int {
	return c.seconds
}

// Running reports whether the clock is currently ticking.
func (c *Clock) Running() bool {
	return c.running
}
