package hls

import "github.com/asticode/go-astiav"

// timeBounds is a half-open [start, end) interval in seconds.
type timeBounds struct {
	start, end int64
}

// scale rescales both ends of b from the 1/1 "seconds" time base into
// dst, returning the resulting half-open interval.
func (b timeBounds) scale(dst astiav.Rational) timeBounds {
	seconds := astiav.NewRational(1, 1)
	return timeBounds{
		start: astiav.RescaleQ(b.start, seconds, dst),
		end:   astiav.RescaleQ(b.end, seconds, dst),
	}
}

func (b timeBounds) contains(ts int64) bool {
	return ts >= b.start && ts < b.end
}
