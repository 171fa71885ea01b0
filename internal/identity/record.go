package identity

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCalendarID is the calendar used when a record does not name one.
const DefaultCalendarID = "primary"

// Phase is the linking state of a Record.
type Phase string

const (
	// PhaseProvisional records carry OAuth tokens but no phone number yet.
	PhaseProvisional Phase = "provisional"
	// PhaseLinked records carry tokens, email and phone.
	PhaseLinked Phase = "linked"
	// PhaseEmpty records have neither tokens nor a phone. They are never
	// produced by the service itself.
	PhaseEmpty Phase = "empty"
)

// Record is the persisted identity: who the user is and how to call Google
// on their behalf. Empty strings mean "absent".
type Record struct {
	ID           string
	Email        string
	PhoneNumber  string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CalendarID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewID returns a fresh opaque record identifier.
func NewID() string {
	return uuid.NewString()
}

// Phase derives the linking phase from the record's fields.
func (r *Record) Phase() Phase {
	switch {
	case r.PhoneNumber != "" && r.Email != "":
		return PhaseLinked
	case r.AccessToken != "":
		return PhaseProvisional
	default:
		return PhaseEmpty
	}
}

// Calendar returns the calendar ID, falling back to the primary calendar.
func (r *Record) Calendar() string {
	if r.CalendarID == "" {
		return DefaultCalendarID
	}
	return r.CalendarID
}

// Clone returns a copy that can be mutated without affecting r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
