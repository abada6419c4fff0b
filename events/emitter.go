package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-resultlink/core"
)

// Event is one emitted analytics record.
type Event struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Path       string         `json:"path"`
	Referrer   string         `json:"referrer,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func (e Event) Record() core.PageViewRecord {
	return core.PageViewRecord{
		ID:         e.ID,
		Name:       e.Name,
		Path:       e.Path,
		Referrer:   e.Referrer,
		SessionID:  e.SessionID,
		Metadata:   core.CopyAnyMap(e.Metadata),
		OccurredAt: e.OccurredAt,
	}
}

type PageView struct {
	Path      string
	Referrer  string
	SessionID string
	Metadata  map[string]any
}

// Sink receives emitted events. Emission is write-only: no sink is ever read
// back by request handling.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type Emitter struct {
	sink     Sink
	clock    core.Clock
	newID    func() string
	observer *core.Observer
}

type Option func(*Emitter)

func WithClock(clock core.Clock) Option {
	return func(e *Emitter) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Emitter) {
		if newID != nil {
			e.newID = newID
		}
	}
}

func WithObserver(observer *core.Observer) Option {
	return func(e *Emitter) {
		if observer != nil {
			e.observer = observer
		}
	}
}

func NewEmitter(sink Sink, opts ...Option) (*Emitter, error) {
	if sink == nil {
		return nil, fmt.Errorf("events: sink is required")
	}
	emitter := &Emitter{
		sink:     sink,
		clock:    core.SystemClock{},
		newID:    uuid.NewString,
		observer: core.NewObserver(nil, nil),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(emitter)
	}
	return emitter, nil
}

// PageView stamps view with an id and the current time and hands it to the
// sink as a page_view event.
func (e *Emitter) PageView(ctx context.Context, view PageView) (Event, error) {
	if e == nil || e.sink == nil {
		return Event{}, core.NewError("events: emitter is not configured", goerrors.CategoryInternal, core.ErrorInternal)
	}
	path := strings.TrimSpace(view.Path)
	if path == "" {
		return Event{}, core.NewError("events: page view path is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	startedAt := time.Now()
	event := Event{
		ID:         e.newID(),
		Name:       core.PageViewEventName,
		Path:       path,
		Referrer:   strings.TrimSpace(view.Referrer),
		SessionID:  strings.TrimSpace(view.SessionID),
		Metadata:   core.CopyAnyMap(view.Metadata),
		OccurredAt: e.clock.Now().UTC(),
	}
	err := e.sink.Emit(ctx, event)
	e.observer.ObserveOperation(ctx, startedAt, "emit_page_view", err, map[string]any{
		"event_id": event.ID,
		"path":     event.Path,
	})
	if err != nil {
		return Event{}, core.WrapError(err, goerrors.CategoryInternal, "events: emit page view", core.ErrorInternal)
	}
	return event, nil
}
