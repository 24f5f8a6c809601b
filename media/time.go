package media

import (
	"fmt"
	"math"
	"time"
)

// DefaultTimescale is the timescale used when none is given, chosen so that
// common frame rates land on whole ticks.
const DefaultTimescale int32 = 600

type timeFlags uint8

const (
	flagValid timeFlags = 1 << iota
	flagPositiveInfinity
)

// Time is a rational media timestamp: Value/Scale seconds. The zero Time is
// invalid, which lets structs use it as an "unset" marker.
type Time struct {
	Value int64
	Scale int32
	flags timeFlags
}

// InvalidTime is the unset timestamp.
var InvalidTime = Time{}

// PositiveInfinity compares greater than every valid finite time.
var PositiveInfinity = Time{Scale: 1, flags: flagValid | flagPositiveInfinity}

// ZeroTime is the start of a timeline.
var ZeroTime = NewTime(0, DefaultTimescale)

// NewTime returns value/scale seconds. A non-positive scale yields InvalidTime.
func NewTime(value int64, scale int32) Time {
	if scale <= 0 {
		return InvalidTime
	}
	return Time{Value: value, Scale: scale, flags: flagValid}
}

// TimeFromSeconds converts seconds to a Time with the given scale.
// Infinite input yields PositiveInfinity.
func TimeFromSeconds(seconds float64, scale int32) Time {
	if math.IsInf(seconds, 1) {
		return PositiveInfinity
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, -1) {
		return InvalidTime
	}
	return NewTime(int64(math.Round(seconds*float64(scale))), scale)
}

// TimeFromDuration converts a Go duration to a Time with the given scale.
func TimeFromDuration(d time.Duration, scale int32) Time {
	return TimeFromSeconds(d.Seconds(), scale)
}

// IsValid reports whether t was set.
func (t Time) IsValid() bool {
	return t.flags&flagValid != 0
}

// IsPositiveInfinity reports whether t is PositiveInfinity.
func (t Time) IsPositiveInfinity() bool {
	return t.flags&flagPositiveInfinity != 0
}

// Seconds returns t in seconds. Invalid times return NaN.
func (t Time) Seconds() float64 {
	switch {
	case !t.IsValid():
		return math.NaN()
	case t.IsPositiveInfinity():
		return math.Inf(1)
	default:
		return float64(t.Value) / float64(t.Scale)
	}
}

// Duration returns t as a Go duration.
func (t Time) Duration() time.Duration {
	if !t.IsValid() {
		return 0
	}
	if t.IsPositiveInfinity() {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(t.Value) * time.Second / time.Duration(t.Scale)
}

// ConvertScale re-expresses t in another timescale, rounding to the nearest
// tick.
func (t Time) ConvertScale(scale int32) Time {
	if !t.IsValid() || t.IsPositiveInfinity() || scale <= 0 || scale == t.Scale {
		return t
	}
	num := t.Value * int64(scale)
	half := int64(t.Scale) / 2
	if num < 0 {
		half = -half
	}
	return NewTime((num+half)/int64(t.Scale), scale)
}

// Compare returns -1, 0 or 1. Invalid times sort before everything else.
func (t Time) Compare(o Time) int {
	switch {
	case !t.IsValid() && !o.IsValid():
		return 0
	case !t.IsValid():
		return -1
	case !o.IsValid():
		return 1
	case t.IsPositiveInfinity() && o.IsPositiveInfinity():
		return 0
	case t.IsPositiveInfinity():
		return 1
	case o.IsPositiveInfinity():
		return -1
	}

	l := t.Value * int64(o.Scale)
	r := o.Value * int64(t.Scale)
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

// Before reports whether t < o.
func (t Time) Before(o Time) bool { return t.Compare(o) < 0 }

// After reports whether t > o.
func (t Time) After(o Time) bool { return t.Compare(o) > 0 }

// Add returns t+o expressed in t's timescale.
func (t Time) Add(o Time) Time {
	if !t.IsValid() || !o.IsValid() {
		return InvalidTime
	}
	if t.IsPositiveInfinity() || o.IsPositiveInfinity() {
		return PositiveInfinity
	}
	return NewTime(t.Value+o.ConvertScale(t.Scale).Value, t.Scale)
}

// Sub returns t-o expressed in t's timescale.
func (t Time) Sub(o Time) Time {
	if !t.IsValid() || !o.IsValid() || o.IsPositiveInfinity() {
		return InvalidTime
	}
	if t.IsPositiveInfinity() {
		return PositiveInfinity
	}
	return NewTime(t.Value-o.ConvertScale(t.Scale).Value, t.Scale)
}

func (t Time) String() string {
	switch {
	case !t.IsValid():
		return "invalid"
	case t.IsPositiveInfinity():
		return "+inf"
	default:
		return fmt.Sprintf("%d/%d", t.Value, t.Scale)
	}
}

// TimeRange is the half-open interval [Start, Start+Duration).
type TimeRange struct {
	Start    Time
	Duration Time
}

// NewTimeRange returns the range starting at start lasting duration.
func NewTimeRange(start, duration Time) TimeRange {
	return TimeRange{Start: start, Duration: duration}
}

// TimeRangeFromTo returns [start, end).
func TimeRangeFromTo(start, end Time) TimeRange {
	return TimeRange{Start: start, Duration: end.Sub(start)}
}

// End returns Start+Duration.
func (r TimeRange) End() Time {
	return r.Start.Add(r.Duration)
}

// IsValid reports whether both bounds are set.
func (r TimeRange) IsValid() bool {
	return r.Start.IsValid() && r.Duration.IsValid()
}

// Contains reports whether t lies in [Start, End).
func (r TimeRange) Contains(t Time) bool {
	if !r.IsValid() || !t.IsValid() {
		return false
	}
	return r.Start.Compare(t) <= 0 && t.Before(r.End())
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start, r.End())
}
