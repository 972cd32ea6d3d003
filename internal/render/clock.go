package render

// Clock is the synthetic presentation clock of a time-lapse. It advances by
// one fixed frame interval per committed frame, independent of wall time.
type Clock struct {
	intervalUs int64
	nowUs      int64
	frames     int
}

// NewClock returns a clock at zero for frameRate frames per second.
func NewClock(frameRate int) *Clock {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &Clock{intervalUs: 1_000_000 / int64(frameRate)}
}

// NowUs returns the timestamp of the next frame in microseconds.
func (c *Clock) NowUs() int64 { return c.nowUs }

// NowNs returns the timestamp of the next frame in nanoseconds.
func (c *Clock) NowNs() int64 { return c.nowUs * 1000 }

// IntervalUs returns the frame interval.
func (c *Clock) IntervalUs() int64 { return c.intervalUs }

// Frames returns the number of frames committed so far.
func (c *Clock) Frames() int { return c.frames }

// Advance moves the clock past a committed frame.
func (c *Clock) Advance() {
	c.nowUs += c.intervalUs
	c.frames++
}
