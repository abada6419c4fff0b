package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-resultlink/core"
)

// MemorySink keeps events in process, mostly for tests and local runs.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Emit(_ context.Context, event Event) error {
	if s == nil {
		return fmt.Errorf("events: memory sink is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Metadata = core.CopyAnyMap(event.Metadata)
	s.events = append(s.events, event)
	return nil
}

func (s *MemorySink) Events() []Event {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

type LogSink struct {
	logger core.Logger
}

func NewLogSink(logger core.Logger) *LogSink {
	return &LogSink{logger: glog.Ensure(logger)}
}

func (s *LogSink) Emit(ctx context.Context, event Event) error {
	if s == nil {
		return nil
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Info("event emitted",
		"event_id", event.ID,
		"event_name", event.Name,
		"path", event.Path,
		"referrer", event.Referrer,
		"occurred_at", event.OccurredAt,
	)
	return nil
}

// RecorderSink persists events through a core.PageViewRecorder.
type RecorderSink struct {
	Recorder core.PageViewRecorder
}

func (s RecorderSink) Emit(ctx context.Context, event Event) error {
	if s.Recorder == nil {
		return fmt.Errorf("events: page view recorder is required")
	}
	return s.Recorder.RecordPageView(ctx, event.Record())
}

// MultiSink fans an event out to every sink. All sinks are attempted and
// their failures are joined.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) error {
	var emitErr error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, event); err != nil {
			emitErr = errors.Join(emitErr, err)
		}
	}
	return emitErr
}

var (
	_ Sink = (*MemorySink)(nil)
	_ Sink = (*LogSink)(nil)
	_ Sink = RecorderSink{}
	_ Sink = MultiSink(nil)
	_ Sink = SinkFunc(nil)
)
