package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Clock supplies the issuance and validation time for tokens. Codec code never
// reads the wall clock directly so expiry checks stay deterministic in tests.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// ResourceFetcher loads the ad or comparison record behind a recovered
// identifier. The response shape is owned by the backend.
type ResourceFetcher interface {
	FetchResource(ctx context.Context, id Identifier) (Resource, error)
}

type ResourceFetcherFunc func(ctx context.Context, id Identifier) (Resource, error)

func (f ResourceFetcherFunc) FetchResource(ctx context.Context, id Identifier) (Resource, error) {
	return f(ctx, id)
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type StoreProvider interface {
	PageViewStore() PageViewRecorder
}

// PageViewRecorder persists emitted page views. Application logic writes to it
// but never reads events back.
type PageViewRecorder interface {
	RecordPageView(ctx context.Context, view PageViewRecord) error
}
