package lrc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeTag is a position in a lyric file, counted in centiseconds.
type TimeTag int64

// MaxMinutes is the largest minute field whose tag still converts to a
// time.Duration without overflow.
const MaxMinutes = math.MaxInt64/int64(time.Minute) - 1

// FromDuration converts a playback offset into a TimeTag, truncating
// anything below one hundredth of a second.
func FromDuration(d time.Duration) TimeTag {
	return TimeTag(d / (10 * time.Millisecond))
}

// Duration returns the tag as a time.Duration.
func (t TimeTag) Duration() time.Duration {
	return time.Duration(t) * 10 * time.Millisecond
}

// String renders the tag as mm:ss.hh.
func (t TimeTag) String() string {
	sign := ""
	if t < 0 {
		sign = "-"
		t = -t
	}
	cs := int64(t)
	return fmt.Sprintf("%s%02d:%02d.%02d", sign, cs/6000, (cs/100)%60, cs%100)
}

// ParseTimeTag parses the body of a time tag ("mm:ss", "mm:ss.h", "mm:ss.hh"
// or "mm:ss.hhh") into centiseconds.
func ParseTimeTag(s string) (TimeTag, error) {
	minPart, rest, ok := strings.Cut(s, ":")
	if !ok || minPart == "" {
		return 0, fmt.Errorf("time tag %q: missing minutes", s)
	}
	secPart, fracPart, hasFrac := strings.Cut(rest, ".")
	if !isDigits(minPart) || len(secPart) == 0 || len(secPart) > 2 || !isDigits(secPart) {
		return 0, fmt.Errorf("time tag %q: invalid minutes or seconds", s)
	}
	if hasFrac && (len(fracPart) == 0 || len(fracPart) > 3 || !isDigits(fracPart)) {
		return 0, fmt.Errorf("time tag %q: invalid fraction", s)
	}

	minutes, err := strconv.ParseInt(minPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("time tag %q: %w", s, err)
	}
	if minutes > MaxMinutes {
		return 0, fmt.Errorf("time tag %q: minutes out of range", s)
	}
	seconds, _ := strconv.ParseInt(secPart, 10, 64)
	if seconds >= 60 {
		return 0, fmt.Errorf("time tag %q: seconds out of range", s)
	}

	var hundredths int64
	if hasFrac {
		frac, _ := strconv.ParseInt(fracPart, 10, 64)
		switch len(fracPart) {
		case 1:
			hundredths = frac * 10
		case 2:
			hundredths = frac
		case 3:
			hundredths = frac / 10
		}
	}

	return TimeTag(minutes*6000 + seconds*100 + hundredths), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
