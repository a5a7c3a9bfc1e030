package sources

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedDuration marks a duration string that does not follow the
// platform's P[nD]T[nH][nM][nS] encoding. Not retryable.
var ErrMalformedDuration = errors.New("malformed duration")

const durationUnits = "DHMS"

var unitSeconds = [...]int{86400, 3600, 60, 1}

// ParseDuration converts a contentDetails.duration value such as "PT1H2M3S"
// into whole seconds. "PT" and "P0D" (live and upcoming streams) yield 0.
// Components must appear in D, H, M, S order, each at most once.
func ParseDuration(s string) (int, error) {
	if !strings.HasPrefix(s, "P") || len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedDuration, s)
	}

	total := 0
	n, digits := 0, 0
	inTime := false
	last := -1
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			if digits >= 9 {
				return 0, fmt.Errorf("%w: %q: component too large", ErrMalformedDuration, s)
			}
			n = n*10 + int(c-'0')
			digits++
		case c == 'T':
			if inTime || digits > 0 {
				return 0, fmt.Errorf("%w: %q: misplaced T", ErrMalformedDuration, s)
			}
			inTime = true
		default:
			idx := strings.IndexByte(durationUnits, c)
			if idx < 0 {
				return 0, fmt.Errorf("%w: %q: unknown component %q", ErrMalformedDuration, s, c)
			}
			if digits == 0 {
				return 0, fmt.Errorf("%w: %q: %q without a number", ErrMalformedDuration, s, c)
			}
			if (c == 'D') == inTime || idx <= last {
				return 0, fmt.Errorf("%w: %q: %q out of order", ErrMalformedDuration, s, c)
			}
			total += n * unitSeconds[idx]
			last = idx
			n, digits = 0, 0
		}
	}
	if digits > 0 {
		return 0, fmt.Errorf("%w: %q: trailing number", ErrMalformedDuration, s)
	}
	if !inTime && last < 0 {
		return 0, fmt.Errorf("%w: %q: no components", ErrMalformedDuration, s)
	}
	return total, nil
}

// FormatDuration is the inverse of ParseDuration for non-negative seconds.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "PT0S"
	}
	var sb strings.Builder
	sb.WriteString("P")
	if d := seconds / 86400; d > 0 {
		fmt.Fprintf(&sb, "%dD", d)
		seconds %= 86400
	}
	if seconds == 0 {
		return sb.String()
	}
	sb.WriteString("T")
	if h := seconds / 3600; h > 0 {
		fmt.Fprintf(&sb, "%dH", h)
	}
	if m := seconds % 3600 / 60; m > 0 {
		fmt.Fprintf(&sb, "%dM", m)
	}
	if sec := seconds % 60; sec > 0 {
		fmt.Fprintf(&sb, "%dS", sec)
	}
	return sb.String()
}
