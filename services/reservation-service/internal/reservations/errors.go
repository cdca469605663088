package reservations

import (
	"errors"
	"fmt"
	"time"

	"github.com/dinehall/tablebook/services/reservation-service/internal/model"
)

// ValidationError rejects malformed or out-of-policy input before any
// mutation happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ConflictError rejects a create or update whose window is already taken on
// the requested table.
type ConflictError struct {
	TableID string
	Start   time.Time
	End     time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("table %s is not available between %s and %s",
		e.TableID, e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339))
}

// NotFoundError reports an unknown reservation or table ID.
type NotFoundError struct {
	Kind string // "reservation" or "table"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// StateError rejects a transition that is not permitted from the
// reservation's current status. Current is always populated so callers can
// render accurate state.
type StateError struct {
	ID        string
	Current   model.Status
	Attempted string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("reservation %s cannot %s from status %s", e.ID, e.Attempted, e.Current)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
