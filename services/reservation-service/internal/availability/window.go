package availability

import (
	"errors"
	"time"

	"github.com/dinehall/tablebook/services/reservation-service/internal/policy"
)

var (
	ErrOutsideServiceWindow = errors.New("start time is outside lunch and dinner service windows")
	ErrBeyondHorizon        = errors.New("date is beyond the advance booking horizon")
)

// ValidateWindow checks a reservation start against the restaurant's
// service windows and advance-booking horizon. The window check and the
// horizon check both evaluate in the restaurant's time zone; this runs
// before, and independently of, any table availability check.
func ValidateWindow(start time.Time, windows policy.Windows, advanceDays int, now time.Time) error {
	loc := windows.Location
	if loc == nil {
		loc = time.UTC
	}

	local := start.In(loc)
	minuteOfDay := local.Hour()*60 + local.Minute()
	if !windows.Lunch.Contains(minuteOfDay) && !windows.Dinner.Contains(minuteOfDay) {
		return ErrOutsideServiceWindow
	}

	// advanceDays 0 still bounds bookings to today; only a negative value
	// disables the horizon.
	if advanceDays >= 0 {
		nowLocal := now.In(loc)
		today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, loc)
		horizon := today.AddDate(0, 0, advanceDays+1)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		if !day.Before(horizon) {
			return ErrBeyondHorizon
		}
	}
	return nil
}

// DayBounds returns the UTC instants covering a restaurant-local calendar
// day given as "2006-01-02".
func DayBounds(day string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start.UTC(), start.AddDate(0, 0, 1).UTC(), nil
}
