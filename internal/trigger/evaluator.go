// Package trigger decides which calendar event is about to start, for
// callers that poll once a minute and send a reminder when something fires.
package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/miraassistant/mira/internal/calendar"
	"github.com/miraassistant/mira/internal/instrumentation"
	"github.com/miraassistant/mira/internal/logging"
)

const (
	// Lead is how long before an event's start its trigger window opens.
	Lead = 10 * time.Minute
	// Width is the trigger window's length.
	Width = time.Minute

	// NoTriggerMessage is reported when no window contains the current time.
	NoTriggerMessage = "No upcoming event (10-minute trigger not reached)"
)

// Zone is the fixed UTC+05:30 zone reminders are evaluated in.
var Zone = time.FixedZone(calendar.TimeZone, 5*60*60+30*60)

// EventLister returns a phone number's events in provider order.
// *calendar.Gateway implements it.
type EventLister interface {
	ListEvents(ctx context.Context, phone string) ([]calendar.Event, error)
}

// Result is the outcome of one evaluation. When Triggered is false only
// Message is set.
type Result struct {
	Triggered   bool      `json:"triggered"`
	EventID     string    `json:"eventId,omitempty"`
	Title       string    `json:"title,omitempty"`
	Start       string    `json:"start,omitempty"`
	TriggeredAt time.Time `json:"triggered_at,omitzero"`
	WindowStart time.Time `json:"trigger_window_start,omitzero"`
	WindowEnd   time.Time `json:"trigger_window_end,omitzero"`
	Message     string    `json:"message,omitempty"`
}

// Evaluator finds the event whose trigger window contains the current time.
type Evaluator struct {
	events  EventLister
	now     func() time.Time
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(e *Evaluator) { e.metrics = metrics }
}

func NewEvaluator(events EventLister, opts ...Option) *Evaluator {
	e := &Evaluator{
		events: events,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Window returns the trigger window [start-Lead, start-Lead+Width).
func Window(start time.Time) (time.Time, time.Time) {
	ws := start.Add(-Lead)
	return ws, ws.Add(Width)
}

// CurrentEvent returns the first event, in provider order, whose trigger
// window contains now. Events without a parseable start and end are
// skipped. Finding nothing is not an error.
func (e *Evaluator) CurrentEvent(ctx context.Context, phone string) (*Result, error) {
	events, err := e.events.ListEvents(ctx, phone)
	if err != nil {
		e.metrics.RecordTriggerEvaluation(ctx, instrumentation.TriggerResultError)
		return nil, err
	}

	now := e.now().In(Zone)
	for _, ev := range events {
		if ev.Start == "" || ev.End == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, ev.Start)
		if err != nil {
			e.logger.Debug("skipping event with unparseable start", logging.Event(ev.ID), logging.Err(err))
			continue
		}
		if _, err := time.Parse(time.RFC3339, ev.End); err != nil {
			e.logger.Debug("skipping event with unparseable end", logging.Event(ev.ID), logging.Err(err))
			continue
		}

		ws, we := Window(start)
		if !now.Before(ws) && now.Before(we) {
			e.metrics.RecordTriggerEvaluation(ctx, instrumentation.TriggerResultTriggered)
			e.logger.Info("event triggered", logging.Event(ev.ID), slog.Time("start", start))
			return &Result{
				Triggered:   true,
				EventID:     ev.ID,
				Title:       ev.Title,
				Start:       ev.Start,
				TriggeredAt: now,
				WindowStart: ws.In(Zone),
				WindowEnd:   we.In(Zone),
			}, nil
		}
	}

	e.metrics.RecordTriggerEvaluation(ctx, instrumentation.TriggerResultNotTriggered)
	return &Result{Message: NoTriggerMessage}, nil
}
