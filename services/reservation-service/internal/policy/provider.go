package policy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockRange is a half-open time-of-day range in minutes since local
// midnight: [Start, End).
type ClockRange struct {
	Start int
	End   int
}

func (c ClockRange) Contains(minuteOfDay int) bool {
	return minuteOfDay >= c.Start && minuteOfDay < c.End
}

// Windows are the service windows in which reservations may start,
// interpreted in the restaurant's time zone.
type Windows struct {
	Lunch    ClockRange
	Dinner   ClockRange
	Location *time.Location
}

// Defaults are the policy-derived reservation parameters. Explicit per
// reservation overrides take precedence.
type Defaults struct {
	DurationMinutes    int
	GracePeriodMinutes int
	MaxSittingMinutes  int
	AdvanceBookingDays int
}

type Provider interface {
	ServiceWindows(ctx context.Context) (Windows, error)
	Defaults(ctx context.Context) (Defaults, error)
}

type staticProvider struct {
	windows  Windows
	defaults Defaults
}

func NewStaticProvider(windows Windows, defaults Defaults) Provider {
	return &staticProvider{windows: windows, defaults: defaults}
}

func (p *staticProvider) ServiceWindows(_ context.Context) (Windows, error) {
	return p.windows, nil
}

func (p *staticProvider) Defaults(_ context.Context) (Defaults, error) {
	return p.defaults, nil
}

// ParseClockRange parses a "HH:MM-HH:MM" range such as "11:30-15:00".
func ParseClockRange(raw string) (ClockRange, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return ClockRange{}, fmt.Errorf("invalid clock range %q", raw)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return ClockRange{}, err
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return ClockRange{}, err
	}
	if end <= start {
		return ClockRange{}, fmt.Errorf("clock range %q must end after it starts", raw)
	}
	return ClockRange{Start: start, End: end}, nil
}

func parseClock(raw string) (int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return h*60 + m, nil
}
