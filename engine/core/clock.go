package core

import "time"

// Clock measures elapsed seconds since Start. The zero value is a stopped clock.
type Clock struct {
	startTime time.Time
	elapsed   float64
	running   bool
	now       func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.running {
		c.elapsed = c.timeNow().Sub(c.startTime).Seconds()
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = c.timeNow()
	c.elapsed = 0
	c.running = true
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.running = false
}

// Elapsed returns the seconds measured at the last Update.
func (c *Clock) Elapsed() float64 {
	return c.elapsed
}

func (c *Clock) timeNow() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}
