// Package timewindow provides validated time ranges for queries against
// log and metric stores.
package timewindow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxDuration is the largest window a single query may span.
const MaxDuration = 30 * 24 * time.Hour

var (
	ErrStartAfterEnd = errors.New("window start is after end")
	ErrFutureEnd     = errors.New("window end is in the future")
	ErrTooLarge      = errors.New("window exceeds maximum duration")
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// New constructs a Window and validates it.
func New(start, end time.Time) (Window, error) {
	w := Window{Start: start.UTC(), End: end.UTC()}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// LastHours returns a window covering the last n hours ending now.
// n values below 1 default to 1.
func LastHours(n int) Window {
	if n < 1 {
		n = 1
	}
	end := time.Now().UTC()
	return Window{Start: end.Add(-time.Duration(n) * time.Hour), End: end}
}

// Range resolves a named duration or explicit bounds into a validated
// window. Explicit bounds win when either is set; a zero end defaults to
// now, a zero start defaults to one hour before end. The name accepts
// time.ParseDuration forms plus a day suffix ("15m", "6h", "7d"); empty
// means the last hour.
func Range(window string, start, end time.Time) (Window, error) {
	now := time.Now().UTC()

	if !start.IsZero() || !end.IsZero() {
		if end.IsZero() {
			end = now
		}
		if start.IsZero() {
			start = end.Add(-time.Hour)
		}
		return New(start, end)
	}

	d, err := parseWindowName(window)
	if err != nil {
		return Window{}, err
	}
	return New(now.Add(-d), now)
}

func parseWindowName(s string) (time.Duration, error) {
	if s == "" {
		return time.Hour, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("invalid window %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", s, err)
	}
	return d, nil
}

// Validate checks the window constraints. A window that ends in the future
// is rejected: there is nothing to query past now, and downstream stores
// treat future bounds inconsistently.
func (w Window) Validate() error {
	if w.Start.After(w.End) {
		return ErrStartAfterEnd
	}
	if w.End.After(time.Now().UTC()) {
		return ErrFutureEnd
	}
	if w.End.Sub(w.Start) > MaxDuration {
		return fmt.Errorf("%w: %s > %s", ErrTooLarge, w.End.Sub(w.Start), MaxDuration)
	}
	return nil
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls within the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// LokiFormat returns the window bounds as nanosecond epoch strings, the
// format Loki's query_range API expects.
func (w Window) LokiFormat() (start, end string) {
	return strconv.FormatInt(w.Start.UnixNano(), 10), strconv.FormatInt(w.End.UnixNano(), 10)
}

// PrometheusFormat returns the window bounds as floating point epoch
// seconds, the format Prometheus range queries expect.
func (w Window) PrometheusFormat() (start, end float64) {
	return float64(w.Start.UnixNano()) / 1e9, float64(w.End.UnixNano()) / 1e9
}

// HumanReadable renders the window duration in a form suitable for prompts
// and summaries, e.g. "last 6 hours".
func (w Window) HumanReadable() string {
	d := w.Duration()
	switch {
	case d < time.Hour:
		m := int(d.Minutes())
		if m <= 1 {
			return "last minute"
		}
		return fmt.Sprintf("last %d minutes", m)
	case d < 48*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "last hour"
		}
		return fmt.Sprintf("last %d hours", h)
	default:
		return fmt.Sprintf("last %d days", int(d.Hours()/24))
	}
}
