// Package timerange turns HH:MM:SS timecodes into a trim window.
package timerange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kikiluvv/clipsplit/pkg/util"
)

// ErrMalformedTimecode is returned for any unparsable or inconsistent trim input.
var ErrMalformedTimecode = errors.New("malformed timecode")

// TimeRange is a trim window in seconds. A nil Duration means "to end of file".
type TimeRange struct {
	Start    float64
	Duration *float64
}

// HasEnd reports whether the range is bounded.
func (r TimeRange) HasEnd() bool {
	return r.Duration != nil
}

// End returns Start+Duration, or 0 when unbounded.
func (r TimeRange) End() float64 {
	if r.Duration == nil {
		return 0
	}
	return r.Start + *r.Duration
}

// String renders the range for logs.
func (r TimeRange) String() string {
	if r.Duration == nil {
		return util.FormatSeconds(r.Start) + "s-EOF"
	}
	return fmt.Sprintf("%ss-%ss", util.FormatSeconds(r.Start), util.FormatSeconds(r.End()))
}

// Resolve parses start and an optional end ("" for none) into a TimeRange.
// An empty start is treated as 00:00:00.
func Resolve(start, end string) (TimeRange, error) {
	if strings.TrimSpace(start) == "" {
		start = "00:00:00"
	}

	startSec, err := ParseHMS(start)
	if err != nil {
		return TimeRange{}, err
	}

	r := TimeRange{Start: float64(startSec)}
	if strings.TrimSpace(end) == "" {
		return r, nil
	}

	endSec, err := ParseHMS(end)
	if err != nil {
		return TimeRange{}, err
	}
	if endSec <= startSec {
		return TimeRange{}, fmt.Errorf("%w: trim end %s must be after trim start %s", ErrMalformedTimecode, end, start)
	}

	d := float64(endSec - startSec)
	r.Duration = &d
	return r, nil
}

// ParseHMS parses a strict HH:MM:SS timecode into whole seconds. Hours are
// unbounded; minutes and seconds must be 0-59.
func ParseHMS(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q is not HH:MM:SS", ErrMalformedTimecode, s)
	}

	fields := make([]int, 3)
	for i, p := range parts {
		if p == "" {
			return 0, fmt.Errorf("%w: %q has an empty field", ErrMalformedTimecode, s)
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %q field %q is not an unsigned integer", ErrMalformedTimecode, s, p)
		}
		fields[i] = int(n)
	}

	hours, minutes, seconds := fields[0], fields[1], fields[2]
	if minutes > 59 {
		return 0, fmt.Errorf("%w: %q minutes out of range", ErrMalformedTimecode, s)
	}
	if seconds > 59 {
		return 0, fmt.Errorf("%w: %q seconds out of range", ErrMalformedTimecode, s)
	}

	return hours*3600 + minutes*60 + seconds, nil
}
