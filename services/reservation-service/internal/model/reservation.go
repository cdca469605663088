package model

import "time"

// Status is the reservation lifecycle state. Transitions only move forward:
// confirmed -> seated -> departed, or confirmed/seated -> cancelled.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusSeated    Status = "seated"
	StatusDeparted  Status = "departed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusSeated, StatusDeparted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusDeparted || s == StatusCancelled
}

// Blocks reports whether a reservation in this status occupies its table's
// timeline. Cancelled and departed reservations never block.
func (s Status) Blocks() bool {
	return s == StatusConfirmed || s == StatusSeated
}

func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusConfirmed:
		return next == StatusSeated || next == StatusCancelled
	case StatusSeated:
		return next == StatusDeparted || next == StatusCancelled
	default:
		return false
	}
}

// Reservation books one table for one party over the half-open window
// [StartTime, EndTime). All instants are UTC; the restaurant-local calendar
// only matters when validating against service windows and when rendering
// a reservation's date.
type Reservation struct {
	ID                 string
	TableID            string
	CustomerName       string
	CustomerEmail      string
	CustomerPhone      string
	PartySize          int
	StartTime          time.Time
	EndTime            time.Time
	DurationMinutes    int
	GracePeriodMinutes int
	MaxSittingMinutes  int
	SpecialRequests    string
	Status             Status
	ActualArrival      *time.Time
	ActualDeparture    *time.Time
	LateArrival        bool
	ArrivalNotes       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Day renders the reservation's date in the restaurant's time zone.
func (r Reservation) Day(loc *time.Location) string {
	return r.StartTime.In(loc).Format("2006-01-02")
}
