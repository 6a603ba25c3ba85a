// Package reporting resolves dashboard date windows and compares metric periods.
package reporting

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	dateLayout    = "2006-01-02"
	maxCustomDays = 365
)

var ErrInvalidWindow = errors.New("invalid reporting window")

const (
	PresetToday     = "today"
	PresetYesterday = "yesterday"
	PresetLast7     = "last_7d"
	PresetLast14    = "last_14d"
	PresetLast30    = "last_30d"
	PresetLast90    = "last_90d"
	PresetThisMonth = "this_month"
	PresetLastMonth = "last_month"
	PresetCustom    = "custom"
)

var trailingDays = map[string]int{
	PresetLast7:  7,
	PresetLast14: 14,
	PresetLast30: 30,
	PresetLast90: 90,
}

// Window is an inclusive range of whole days in the account's timezone.
type Window struct {
	Preset string
	Since  time.Time
	Until  time.Time
}

// ResolveWindow turns a preset, or an explicit since/until pair, into a Window.
// Trailing presets cover full days ending yesterday. An empty preset means
// custom when dates are given and last_7d otherwise.
func ResolveWindow(preset, since, until string, now time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	today := startOfDay(now.In(loc))
	yesterday := today.AddDate(0, 0, -1)

	if preset == "" {
		preset = PresetLast7
		if since != "" || until != "" {
			preset = PresetCustom
		}
	}

	if n, ok := trailingDays[preset]; ok {
		return Window{Preset: preset, Since: yesterday.AddDate(0, 0, -(n - 1)), Until: yesterday}, nil
	}

	switch preset {
	case PresetToday:
		return Window{Preset: preset, Since: today, Until: today}, nil
	case PresetYesterday:
		return Window{Preset: preset, Since: yesterday, Until: yesterday}, nil
	case PresetThisMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		return Window{Preset: preset, Since: first, Until: today}, nil
	case PresetLastMonth:
		first := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, loc)
		last := time.Date(today.Year(), today.Month(), 0, 0, 0, 0, 0, loc)
		return Window{Preset: preset, Since: first, Until: last}, nil
	case PresetCustom:
		return customWindow(since, until, today, loc)
	}

	return Window{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidWindow, preset)
}

func customWindow(since, until string, today time.Time, loc *time.Location) (Window, error) {
	if since == "" || until == "" {
		return Window{}, fmt.Errorf("%w: since and until are required", ErrInvalidWindow)
	}

	s, err := time.ParseInLocation(dateLayout, since, loc)
	if err != nil {
		return Window{}, fmt.Errorf("%w: since must be YYYY-MM-DD", ErrInvalidWindow)
	}
	u, err := time.ParseInLocation(dateLayout, until, loc)
	if err != nil {
		return Window{}, fmt.Errorf("%w: until must be YYYY-MM-DD", ErrInvalidWindow)
	}

	switch {
	case u.Before(s):
		return Window{}, fmt.Errorf("%w: since is after until", ErrInvalidWindow)
	case u.After(today):
		return Window{}, fmt.Errorf("%w: until is in the future", ErrInvalidWindow)
	}

	w := Window{Preset: PresetCustom, Since: s, Until: u}
	if w.Days() > maxCustomDays {
		return Window{}, fmt.Errorf("%w: range exceeds %d days", ErrInvalidWindow, maxCustomDays)
	}
	return w, nil
}

// Days is the number of calendar days covered, counting both ends.
func (w Window) Days() int {
	// calendar arithmetic on UTC dates avoids DST-length days
	s := time.Date(w.Since.Year(), w.Since.Month(), w.Since.Day(), 0, 0, 0, 0, time.UTC)
	u := time.Date(w.Until.Year(), w.Until.Month(), w.Until.Day(), 0, 0, 0, 0, time.UTC)
	return int(u.Sub(s).Hours()/24) + 1
}

// Previous is the window of equal length that ends the day before w starts.
func (w Window) Previous() Window {
	n := w.Days()
	until := w.Since.AddDate(0, 0, -1)
	return Window{Preset: PresetCustom, Since: until.AddDate(0, 0, -(n - 1)), Until: until}
}

func (w Window) Key() string {
	return w.Since.Format(dateLayout) + "_" + w.Until.Format(dateLayout)
}

// TimeRange is the Graph API time_range value for w.
func (w Window) TimeRange() map[string]string {
	return map[string]string{
		"since": w.Since.Format(dateLayout),
		"until": w.Until.Format(dateLayout),
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Delta is the percentage change from previous to current, rounded to two
// decimals. It is nil when previous is zero.
func Delta(current, previous float64) *float64 {
	if previous == 0 {
		return nil
	}
	d := math.Round((current-previous)/previous*10000) / 100
	return &d
}
