package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-resultlink/core"
	"github.com/goliatone/go-resultlink/token"
)

// Decoder recovers identifiers from tokens. *token.Codec satisfies it.
type Decoder interface {
	Decode(raw string) (core.Identifier, error)
}

type Resolver struct {
	decoder  Decoder
	fetcher  core.ResourceFetcher
	routes   core.RoutesConfig
	observer *core.Observer
	clock    core.Clock
}

type Option func(*Resolver)

func WithRoutes(routes core.RoutesConfig) Option {
	return func(r *Resolver) {
		if strings.TrimSpace(routes.TokenParam) != "" {
			r.routes.TokenParam = routes.TokenParam
		}
		if strings.TrimSpace(routes.TokenParamA) != "" {
			r.routes.TokenParamA = routes.TokenParamA
		}
		if strings.TrimSpace(routes.TokenParamB) != "" {
			r.routes.TokenParamB = routes.TokenParamB
		}
	}
}

func WithObserver(observer *core.Observer) Option {
	return func(r *Resolver) {
		if observer != nil {
			r.observer = observer
		}
	}
}

func WithClock(clock core.Clock) Option {
	return func(r *Resolver) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func New(decoder Decoder, fetcher core.ResourceFetcher, opts ...Option) (*Resolver, error) {
	if decoder == nil {
		return nil, fmt.Errorf("resolver: decoder is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("resolver: resource fetcher is required")
	}
	r := &Resolver{
		decoder:  decoder,
		fetcher:  fetcher,
		routes:   core.DefaultConfig().Routes,
		observer: core.NewObserver(nil, nil),
		clock:    core.SystemClock{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r, nil
}

// LoadSingle starts resolving the single-result page described by query. The
// returned page has already decoded its token; a fetch, if any, is in flight.
func (r *Resolver) LoadSingle(ctx context.Context, query url.Values) *Page {
	return r.load(ctx, KindSingle, []string{r.routes.TokenParam}, query)
}

// LoadComparison resolves both comparison tokens. Both are required and a
// fetch only starts when both decode.
func (r *Resolver) LoadComparison(ctx context.Context, query url.Values) *Page {
	return r.load(ctx, KindComparison, []string{r.routes.TokenParamA, r.routes.TokenParamB}, query)
}

func (r *Resolver) load(ctx context.Context, kind Kind, params []string, query url.Values) *Page {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	operation := "resolve_" + string(kind)
	pageCtx, cancel := context.WithCancel(ctx)

	var page *Page
	page = newPage(kind, params, cancel, func(snapshot Snapshot, closed bool) {
		r.observeSettled(ctx, startedAt, operation, snapshot, closed, settledError(snapshot, page))
	})

	page.mu.Lock()
	fetchable := r.decodeSides(ctx, page.sides, query)
	page.mu.Unlock()

	if !fetchable {
		page.finish()
		return page
	}

	page.mu.Lock()
	for _, s := range page.sides {
		s.transition(StateFetchingResource)
	}
	page.mu.Unlock()

	go page.fetch(pageCtx, r.fetcher, r.clock.Now)
	return page
}

// decodeSides walks every side through its token states and reports whether
// all of them decoded.
func (r *Resolver) decodeSides(ctx context.Context, sides []*side, query url.Values) bool {
	fetchable := true
	for _, s := range sides {
		values, present := query[s.param]
		if !present || len(values) == 0 {
			s.transition(StateTokenAbsent)
			s.transition(StateMissingParameter)
			s.failureKind = "missing"
			fetchable = false
			continue
		}
		s.raw = values[0]
		s.transition(StateTokenPresent)
		s.transition(StateDecoding)

		id, err := r.decoder.Decode(s.raw)
		if err != nil {
			s.transition(StateDecodeFailed)
			s.transition(StateNotFound)
			s.failureKind = failureKind(err)
			s.err = err
			fetchable = false
			r.observer.LogWarn(ctx, "result token rejected", map[string]any{
				"param":             s.param,
				"failure_kind":      s.failureKind,
				"token_fingerprint": core.Fingerprint(s.raw),
			})
			continue
		}
		s.identifier = id
		s.transition(StateDecodeSucceeded)
	}
	return fetchable
}

func failureKind(err error) string {
	if kind, ok := token.KindOf(err); ok {
		return string(kind)
	}
	return string(token.FailureMalformed)
}

func (r *Resolver) observeSettled(ctx context.Context, startedAt time.Time, operation string, snapshot Snapshot, closed bool, failure error) {
	fields := map[string]any{
		"state":        string(snapshot.State),
		"presentation": string(snapshot.Presentation),
	}
	for _, s := range snapshot.Sides {
		if s.FailureKind != "" {
			fields["failure_kind"] = s.FailureKind
		}
	}
	if closed {
		fields["state"] = "closed"
		r.observer.LogInfo(ctx, operation+" discarded", fields)
		return
	}
	r.observer.ObserveOperation(ctx, startedAt, operation, failure, fields)
}

func settledError(snapshot Snapshot, page *Page) error {
	switch snapshot.Presentation {
	case PresentationNotFound:
		return errors.New(string(snapshot.State))
	case PresentationUnavailable:
		if joined := errors.Join(page.fetchErrors()...); joined != nil {
			return joined
		}
		return errors.New(string(StateResourceFetchFailed))
	default:
		return nil
	}
}
