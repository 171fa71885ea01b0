package calendar

import (
	"strings"

	calendar "google.golang.org/api/calendar/v3"
)

// Event is a calendar event as the provider returned it. Start and End are
// the provider's raw dateTime strings; they are compared textually, never
// normalized.
type Event struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// CreatedEvent is returned by CreateEvent.
type CreatedEvent struct {
	ID       string `json:"id"`
	HTMLLink string `json:"htmlLink"`
}

// RescheduledEvent is returned by RescheduleEventByName.
type RescheduledEvent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CancelledEvent describes the event removed by CancelEventByName.
type CancelledEvent struct {
	EventID   string `json:"eventId"`
	EventName string `json:"eventName"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

// toEvent converts a provider event. Missing start or end leave the field
// empty.
func toEvent(e *calendar.Event) Event {
	if e == nil {
		return Event{}
	}
	ev := Event{
		ID:    e.Id,
		Title: e.Summary,
	}
	if e.Start != nil {
		ev.Start = e.Start.DateTime
	}
	if e.End != nil {
		ev.End = e.End.DateTime
	}
	return ev
}

// Matches reports whether the event has a title equal to title (case-insensitive)
// and its start dateTime begins with date and carries time as HH:MM at
// offset 11.
func (e Event) Matches(title, date, clock string) bool {
	if len(e.Start) < 16 || e.Title == "" || !strings.EqualFold(e.Title, title) {
		return false
	}
	return e.Start[0:10] == date && e.Start[11:16] == clock
}
