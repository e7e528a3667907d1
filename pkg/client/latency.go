package client

import "math"

// maxLatencyDataPoints bounds the rolling average window.
const maxLatencyDataPoints = 14

// Latency tracks round-trip times derived from server timestamps. Average
// is only meaningful once the window has filled.
type Latency struct {
	Min     float64
	Max     float64
	Average float64

	points []float64
}

func newLatency() *Latency {
	return &Latency{Min: math.MaxFloat64}
}

// observe records one data point and reports whether the rolling window is
// full, which is when Average was recomputed.
func (l *Latency) observe(ms float64) bool {
	if ms > l.Max {
		l.Max = ms
	}
	if ms < l.Min {
		l.Min = ms
	}
	l.points = append(l.points, ms)
	if len(l.points) <= maxLatencyDataPoints {
		return false
	}
	l.points = l.points[1:]

	var sum float64
	for _, p := range l.points {
		sum += p
	}
	l.Average = sum / float64(len(l.points))
	return true
}
