package model

// Table is a physical seating unit. Reservations reference tables by ID
// only; the table registry owns the records.
type Table struct {
	ID           string
	Capacity     int
	MinPartySize int
	Active       bool
}

// FitsParty reports whether a party size is within the table's bounds.
func (t Table) FitsParty(size int) bool {
	return size >= t.MinPartySize && size <= t.Capacity
}
