package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/miraassistant/mira/internal/apperr"
	"github.com/miraassistant/mira/internal/identity"
	"github.com/miraassistant/mira/internal/instrumentation"
	"github.com/miraassistant/mira/internal/logging"
)

const (
	// TimeZone is the zone events are created in.
	TimeZone = "Asia/Kolkata"
	// zoneOffset is TimeZone's fixed UTC offset, appended to created events.
	zoneOffset = "+05:30"

	// DefaultTitle is used when CreateEvent receives an empty title.
	DefaultTitle = "New Event"
)

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// ServiceFactory builds a Calendar API service that authenticates with the
// given access token.
type ServiceFactory interface {
	Service(ctx context.Context, accessToken string) (*calendar.Service, error)
}

// BearerServiceFactory sends the access token as a static bearer token.
// Endpoint overrides the API base URL; BaseClient, if set, carries the
// requests.
type BearerServiceFactory struct {
	Endpoint   string
	BaseClient *http.Client
}

func (f BearerServiceFactory) Service(ctx context.Context, accessToken string) (*calendar.Service, error) {
	if f.BaseClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.BaseClient)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, src))}
	if f.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.Endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return svc, nil
}

// TokenValidator returns a record whose access token is safe to use.
// *tokens.Manager implements it.
type TokenValidator interface {
	EnsureValidToken(ctx context.Context, rec *identity.Record) (*identity.Record, error)
}

// Gateway performs calendar operations on behalf of a linked phone number.
// Every operation resolves the identity and validates its token first.
type Gateway struct {
	store   identity.Store
	tokens  TokenValidator
	factory ServiceFactory
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(g *Gateway) { g.metrics = metrics }
}

// NewGateway creates a Gateway. A nil factory uses BearerServiceFactory
// against Google's production endpoint.
func NewGateway(store identity.Store, tokens TokenValidator, factory ServiceFactory, opts ...Option) *Gateway {
	if factory == nil {
		factory = BearerServiceFactory{}
	}
	g := &Gateway{
		store:   store,
		tokens:  tokens,
		factory: factory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.WithService(g.logger, instrumentation.ServiceCalendar)
	return g
}

// session is a resolved identity plus a service bound to its token.
type session struct {
	rec *identity.Record
	svc *calendar.Service
}

func (g *Gateway) open(ctx context.Context, phone string) (*session, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("phone number is required: %w", apperr.ErrBadRequest)
	}

	matches, err := g.store.FindAllByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("looking up phone: %w", err)
	}
	if len(matches) == 0 {
		return nil, apperr.ErrNoSuchAccount
	}

	rec, err := g.tokens.EnsureValidToken(ctx, matches[0])
	if err != nil {
		return nil, err
	}

	svc, err := g.factory.Service(ctx, rec.AccessToken)
	if err != nil {
		return nil, err
	}
	return &session{rec: rec, svc: svc}, nil
}

// CreateEvent creates a one-hour event starting at time24 on date in
// TimeZone. The end hour wraps modulo 24 without moving to the next day, so
// 23:30 yields an end of 00:30 on the same date.
func (g *Gateway) CreateEvent(ctx context.Context, phone, title, date, time24 string) (*CreatedEvent, error) {
	end, err := addHour(time24)
	if err != nil {
		return nil, err
	}
	if err := validateDate(date); err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}

	s, err := g.open(ctx, phone)
	if err != nil {
		return nil, err
	}

	event := &calendar.Event{
		Summary: title,
		Start: &calendar.EventDateTime{
			DateTime: date + "T" + time24 + ":00" + zoneOffset,
			TimeZone: TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: date + "T" + end + ":00" + zoneOffset,
			TimeZone: TimeZone,
		},
	}

	var created *calendar.Event
	err = g.call(ctx, instrumentation.OperationInsert, func(ctx context.Context) error {
		created, err = s.svc.Events.Insert(s.rec.Calendar(), event).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("event created", logging.Record(s.rec.ID), logging.Event(created.Id))
	return &CreatedEvent{ID: created.Id, HTMLLink: created.HtmlLink}, nil
}

// RescheduleEventByName moves the first event titled name (case-insensitive,
// provider order) to newDate at newTime for one hour. The new dateTime is
// sent without an offset or time zone, unlike CreateEvent.
func (g *Gateway) RescheduleEventByName(ctx context.Context, phone, name, newDate, newTime string) (*RescheduledEvent, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	end, err := addHour(newTime)
	if err != nil {
		return nil, err
	}
	if err := validateDate(newDate); err != nil {
		return nil, err
	}

	s, err := g.open(ctx, phone)
	if err != nil {
		return nil, err
	}

	events, err := g.list(ctx, s)
	if err != nil {
		return nil, err
	}

	var found *Event
	for i := range events {
		if events[i].Title != "" && strings.EqualFold(events[i].Title, name) {
			found = &events[i]
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrEventNotFound, name)
	}

	patch := &calendar.Event{
		Start: &calendar.EventDateTime{DateTime: newDate + "T" + newTime + ":00"},
		End:   &calendar.EventDateTime{DateTime: newDate + "T" + end + ":00"},
	}

	var updated *calendar.Event
	err = g.call(ctx, instrumentation.OperationPatch, func(ctx context.Context) error {
		updated, err = s.svc.Events.Patch(s.rec.Calendar(), found.ID, patch).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("event rescheduled", logging.Record(s.rec.ID), logging.Event(updated.Id))
	return &RescheduledEvent{ID: updated.Id, Status: "updated"}, nil
}

// CancelEventByName deletes the first event matching title, date and time as
// described by Event.Matches.
func (g *Gateway) CancelEventByName(ctx context.Context, phone, name, date, clock string) (*CancelledEvent, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	s, err := g.open(ctx, phone)
	if err != nil {
		return nil, err
	}

	events, err := g.list(ctx, s)
	if err != nil {
		return nil, err
	}

	found, err := match(events, name, date, clock)
	if err != nil {
		return nil, err
	}

	err = g.call(ctx, instrumentation.OperationDelete, func(ctx context.Context) error {
		return s.svc.Events.Delete(s.rec.Calendar(), found.ID).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("event cancelled", logging.Record(s.rec.ID), logging.Event(found.ID))
	return &CancelledEvent{
		EventID:   found.ID,
		EventName: name,
		Date:      date,
		Time:      clock,
	}, nil
}

// ReadEventByName returns the first event matching title, date and time.
func (g *Gateway) ReadEventByName(ctx context.Context, phone, name, date, clock string) (*Event, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	events, err := g.ReadEvents(ctx, phone)
	if err != nil {
		return nil, err
	}
	return match(events, name, date, clock)
}

// ReadEvents returns the events that have both a title and a start dateTime.
func (g *Gateway) ReadEvents(ctx context.Context, phone string) ([]Event, error) {
	all, err := g.ListEvents(ctx, phone)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(all))
	for _, e := range all {
		if e.Title == "" || e.Start == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ListEvents returns every event on the identity's calendar in provider
// order, following all result pages.
func (g *Gateway) ListEvents(ctx context.Context, phone string) ([]Event, error) {
	s, err := g.open(ctx, phone)
	if err != nil {
		return nil, err
	}
	return g.list(ctx, s)
}

func (g *Gateway) list(ctx context.Context, s *session) ([]Event, error) {
	var events []Event
	err := g.call(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		return s.svc.Events.List(s.rec.Calendar()).Pages(ctx, func(page *calendar.Events) error {
			for _, item := range page.Items {
				events = append(events, toEvent(item))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func match(events []Event, name, date, clock string) (*Event, error) {
	for i := range events {
		if events[i].Matches(name, date, clock) {
			return &events[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", apperr.ErrEventNotFound, name)
}

// call runs one Calendar API request inside a span and records its outcome.
func (g *Gateway) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		err = upstream(err)
		instrumentation.SetSpanError(span, err)
		g.logger.Warn("calendar request failed", logging.Operation(operation), logging.Err(err))
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	g.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, operation, status, time.Since(start))
	return err
}

// upstream converts Calendar API failures into apperr.UpstreamError.
func upstream(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Body
		if body == "" {
			body = gerr.Message
		}
		return apperr.NewUpstreamError(instrumentation.ServiceCalendar, gerr.Code, body, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.NewUpstreamError(instrumentation.ServiceCalendar, 0, "", err)
}

// addHour validates an HH:MM clock and returns it one hour later, wrapping at
// midnight.
func addHour(clock string) (string, error) {
	m := clockPattern.FindStringSubmatch(clock)
	if m == nil {
		return "", fmt.Errorf("time must be HH:MM, got %q: %w", clock, apperr.ErrBadRequest)
	}
	hour, _ := strconv.Atoi(m[1])
	return fmt.Sprintf("%02d:%s", (hour+1)%24, m[2]), nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("event name is required: %w", apperr.ErrBadRequest)
	}
	return nil
}

func validateDate(date string) error {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD, got %q: %w", date, apperr.ErrBadRequest)
	}
	return nil
}
