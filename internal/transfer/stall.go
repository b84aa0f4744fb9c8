package transfer

import "time"

// StallDetector judges whether a transfer has sustained throughput below a quarter of
// its observed peak for longer than a tolerance window.
//
// Debt is kept in seconds: each observation credits the bytes received, expressed as
// seconds of quarter-peak throughput, and charges the poll interval. Credit is capped
// at zero so an early burst cannot mask a later stall. Debt below -window trips.
type StallDetector struct {
	interval time.Duration
	window   time.Duration

	peak     int64
	last     int64
	debt     float64
	observed bool
}

func NewStallDetector(interval, window time.Duration) *StallDetector {
	return &StallDetector{interval: interval, window: window}
}

// Observe records one poll of completed bytes and the daemon-reported speed (bytes/s)
// and reports whether the transfer is now considered stalled.
func (d *StallDetector) Observe(completed, speed int64) bool {
	if speed > d.peak {
		d.peak = speed
	}

	if !d.observed {
		d.observed = true
		d.last = completed

		return false
	}

	delta := completed - d.last
	if delta < 0 {
		// the daemon restarted the file from scratch
		delta = 0
	}

	d.last = completed

	floor := float64(d.peak) / 4
	if floor <= 0 {
		return false
	}

	d.debt += float64(delta)/floor - d.interval.Seconds()
	if d.debt > 0 {
		d.debt = 0
	}

	return d.Stalled()
}

func (d *StallDetector) Stalled() bool {
	return d.debt < -d.window.Seconds()
}

// Debt returns the accumulated deficit in seconds (always <= 0).
func (d *StallDetector) Debt() float64 {
	return d.debt
}

// Peak returns the highest speed observed so far in bytes/s.
func (d *StallDetector) Peak() int64 {
	return d.peak
}
