package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-resultlink/core"
)

// ErrPageClosed is returned by Wait when the page was torn down before its
// fetches settled.
var ErrPageClosed = errors.New("resolver: page closed")

type Kind string

const (
	KindSingle     Kind = "single"
	KindComparison Kind = "comparison"
)

type side struct {
	param       string
	raw         string
	state       State
	history     []State
	identifier  core.Identifier
	resource    core.Resource
	hasResource bool
	failureKind string
	err         error
}

func newSide(param string) *side {
	return &side{param: param, state: StateIdle, history: []State{StateIdle}}
}

func (s *side) transition(to State) bool {
	if !s.state.CanTransition(to) {
		return false
	}
	s.state = to
	s.history = append(s.history, to)
	return true
}

// SideSnapshot is the state of one token slot. The comparison page carries one
// per parameter, each tracked independently.
type SideSnapshot struct {
	Param       string
	State       State
	History     []State
	Identifier  core.Identifier
	Resource    *core.Resource
	FailureKind string
}

type Snapshot struct {
	Kind         Kind
	State        State
	Presentation Presentation
	Sides        []SideSnapshot
}

func (s Snapshot) Side(param string) (SideSnapshot, bool) {
	for _, candidate := range s.Sides {
		if candidate.Param == param {
			return candidate, true
		}
	}
	return SideSnapshot{}, false
}

// Err returns the public envelope for a terminal failure, nil otherwise.
func (s Snapshot) Err() *goerrors.Error {
	switch s.Presentation {
	case PresentationNotFound:
		return core.NotFoundError()
	case PresentationUnavailable:
		return core.UnavailableError()
	default:
		return nil
	}
}

type settleFunc func(snapshot Snapshot, closed bool)

// Page is one destination page load. Close must be called when the caller
// stops caring about the outcome; results arriving afterwards are dropped.
type Page struct {
	mu        sync.Mutex
	kind      Kind
	sides     []*side
	cancel    context.CancelFunc
	closed    bool
	discarded int
	done      chan struct{}
	doneOnce  sync.Once
	settled   chan struct{}
	onSettle  settleFunc
}

func newPage(kind Kind, params []string, cancel context.CancelFunc, onSettle settleFunc) *Page {
	sides := make([]*side, 0, len(params))
	for _, param := range params {
		sides = append(sides, newSide(param))
	}
	return &Page{
		kind:     kind,
		sides:    sides,
		cancel:   cancel,
		done:     make(chan struct{}),
		settled:  make(chan struct{}),
		onSettle: onSettle,
	}
}

func (p *Page) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Page) snapshotLocked() Snapshot {
	states := make([]State, 0, len(p.sides))
	sides := make([]SideSnapshot, 0, len(p.sides))
	for _, s := range p.sides {
		states = append(states, s.state)
		snap := SideSnapshot{
			Param:       s.param,
			State:       s.state,
			History:     append([]State(nil), s.history...),
			Identifier:  s.identifier,
			FailureKind: s.failureKind,
		}
		if s.hasResource {
			resource := s.resource.Clone()
			snap.Resource = &resource
		}
		sides = append(sides, snap)
	}
	state := pageState(states)
	return Snapshot{
		Kind:         p.kind,
		State:        state,
		Presentation: presentationFor(state),
		Sides:        sides,
	}
}

// Done is closed once every side reached a terminal state or the page was
// closed.
func (p *Page) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the page settles, ctx ends, or the page is closed.
func (p *Page) Wait(ctx context.Context) (Snapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		return p.Snapshot(), ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return p.snapshotLocked(), ErrPageClosed
	}
	return p.snapshotLocked(), nil
}

// Close cancels in-flight fetches. It is safe to call more than once.
func (p *Page) Close() {
	p.mu.Lock()
	alreadyClosed := p.closed
	p.closed = true
	p.mu.Unlock()
	if alreadyClosed {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.doneOnce.Do(func() { close(p.done) })
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// finish marks a page that never started fetching as settled.
func (p *Page) finish() {
	close(p.settled)
	p.settle()
}

func (p *Page) settle() {
	p.mu.Lock()
	closed := p.closed
	snapshot := p.snapshotLocked()
	p.mu.Unlock()
	p.doneOnce.Do(func() { close(p.done) })
	if p.cancel != nil {
		p.cancel()
	}
	if p.onSettle != nil {
		p.onSettle(snapshot, closed)
	}
}

func (p *Page) fetch(ctx context.Context, fetcher core.ResourceFetcher, now func() time.Time) {
	defer close(p.settled)

	// sides fail independently, so the group carries no shared cancellation.
	var group errgroup.Group
	for _, s := range p.sides {
		group.Go(func() error {
			resource, err := fetcher.FetchResource(ctx, s.identifier)
			p.complete(s, resource, err, now)
			return nil
		})
	}
	_ = group.Wait()
	p.settle()
}

func (p *Page) complete(s *side, resource core.Resource, err error, now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.discarded++
		return
	}
	if err != nil {
		s.err = err
		s.transition(StateResourceFetchFailed)
		return
	}
	if resource.Identifier.IsZero() {
		resource.Identifier = s.identifier
	}
	if resource.FetchedAt.IsZero() {
		resource.FetchedAt = now()
	}
	s.resource = resource.Clone()
	s.hasResource = true
	s.transition(StateResourceReady)
}

func (p *Page) fetchErrors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, s := range p.sides {
		if s.err != nil {
			errs = append(errs, s.err)
		}
	}
	return errs
}
