package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-resultlink/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

const (
	headerRetryAfter       = "retry-after"
	headerLimit            = "x-ratelimit-limit"
	headerRemaining        = "x-ratelimit-remaining"
	headerReset            = "x-ratelimit-reset"
	headerBusinessUseCase  = "x-business-use-case-usage"
	usageThrottlePercent   = 100
	defaultInitialBackoff  = time.Second
	defaultMaxBackoff      = time.Minute
	defaultRetryHintWindow = 5 * time.Second
)

// Key names one throttling bucket, such as the Graph API for one ad account.
type Key struct {
	Bucket string
	Scope  string
}

func (k Key) normalize() Key {
	return Key{
		Bucket: strings.ToLower(strings.TrimSpace(k.Bucket)),
		Scope:  strings.TrimSpace(k.Scope),
	}
}

func (k Key) String() string {
	return k.Bucket + "|" + k.Scope
}

// Response is what the policy needs to know about a finished upstream call.
// Throttled is set by callers that detect throttling from the body.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Throttled  bool
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type State struct {
	Key            Key
	Limit          int
	Remaining      int
	Usage          int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
	Metadata       map[string]any
}

type StateStore interface {
	Get(ctx context.Context, key Key) (State, error)
	Upsert(ctx context.Context, state State) error
}

type ThrottledError struct {
	Key        Key
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: %s for %q throttled for %s", e.Key.Bucket, e.Key.Scope, e.RetryAfter)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"bucket": e.Key.Bucket}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return core.WrapError(e, goerrors.CategoryRateLimit, "upstream is throttling requests", core.ErrorRateLimited).
		WithMetadata(metadata)
}

// AdaptivePolicy remembers upstream throttling per key and refuses calls until
// the announced or backed-off window has passed.
type AdaptivePolicy struct {
	Store            StateStore
	Now              func() time.Time
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	DefaultRetryHint time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:            store,
		Now:              func() time.Time { return time.Now().UTC() },
		InitialBackoff:   defaultInitialBackoff,
		MaxBackoff:       defaultMaxBackoff,
		DefaultRetryHint: defaultRetryHintWindow,
	}
}

func (p *AdaptivePolicy) BeforeCall(ctx context.Context, key Key) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = key.normalize()
	state, err := p.Store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{Key: key, RetryAfter: until.Sub(now)}
	}
	if state.Remaining == 0 && state.ResetAt != nil && now.Before(*state.ResetAt) {
		return ThrottledError{Key: key, RetryAfter: state.ResetAt.Sub(now)}
	}
	return nil
}

func (p *AdaptivePolicy) AfterCall(ctx context.Context, key Key, res Response) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = key.normalize()
	now := p.now()
	state, err := p.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{Key: key}
	}

	state.LastStatus = res.StatusCode
	state.UpdatedAt = now
	state.Metadata = cloneMap(state.Metadata)
	for k, v := range res.Metadata {
		state.Metadata[k] = v
	}

	limit, hasLimit := parseHeaderInt(res.Headers, headerLimit)
	if hasLimit {
		state.Limit = limit
	}
	remaining, hasRemaining := parseHeaderInt(res.Headers, headerRemaining)
	if hasRemaining {
		state.Remaining = remaining
	}
	resetAt, hasResetAt := parseHeaderResetAt(res.Headers)
	if hasResetAt {
		state.ResetAt = &resetAt
	}
	usage, regain := parseBusinessUseCaseUsage(res.Headers)
	state.Usage = usage

	retryAfter, hasRetryAfter := parseRetryAfter(res, now)
	if !hasRetryAfter && regain > 0 {
		retryAfter, hasRetryAfter = regain, true
	}
	if hasRetryAfter {
		state.RetryAfter = &retryAfter
	} else {
		state.RetryAfter = nil
	}

	throttled := res.Throttled ||
		res.StatusCode == 429 ||
		usage >= usageThrottlePercent ||
		(res.StatusCode < 500 && state.Remaining == 0 && (hasRemaining || hasResetAt || hasLimit))
	if throttled {
		state.Attempts++
		delay := retryAfter
		if !hasRetryAfter {
			delay = p.nextBackoff(state.Attempts)
		}
		until := now.Add(delay)
		state.ThrottledUntil = &until
		return p.Store.Upsert(ctx, state)
	}

	state.Attempts = 0
	state.ThrottledUntil = nil
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *AdaptivePolicy) nextBackoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	maximum := p.MaxBackoff
	if maximum <= 0 {
		maximum = defaultMaxBackoff
	}
	if attempt <= 0 {
		return initial
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay <= 0 {
		if p.DefaultRetryHint > 0 {
			return p.DefaultRetryHint
		}
		return defaultRetryHintWindow
	}
	return delay
}

func parseRetryAfter(res Response, now time.Time) (time.Duration, bool) {
	if res.RetryAfter != nil && *res.RetryAfter > 0 {
		return *res.RetryAfter, true
	}
	raw := headerValue(res.Headers, headerRetryAfter)
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := httpDate(raw); err == nil && retryAt.After(now) {
		return retryAt.Sub(now), true
	}
	return 0, false
}

type businessUseCase struct {
	CallCount                   int `json:"call_count"`
	TotalCPUTime                int `json:"total_cputime"`
	TotalTime                   int `json:"total_time"`
	EstimatedTimeToRegainAccess int `json:"estimated_time_to_regain_access"`
}

// parseBusinessUseCaseUsage reads Meta's X-Business-Use-Case-Usage header and
// returns the highest usage percentage with the longest regain window.
// https://developers.facebook.com/docs/graph-api/overview/rate-limiting#headers-2
func parseBusinessUseCaseUsage(headers map[string]string) (int, time.Duration) {
	raw := headerValue(headers, headerBusinessUseCase)
	if raw == "" {
		return 0, 0
	}
	var usage map[string][]businessUseCase
	if err := json.Unmarshal([]byte(raw), &usage); err != nil {
		return 0, 0
	}
	peak, regainMinutes := 0, 0
	for _, entries := range usage {
		for _, entry := range entries {
			peak = max(peak, entry.CallCount, entry.TotalCPUTime, entry.TotalTime)
			regainMinutes = max(regainMinutes, entry.EstimatedTimeToRegainAccess)
		}
	}
	return peak, time.Duration(regainMinutes) * time.Minute
}

func parseHeaderInt(headers map[string]string, key string) (int, bool) {
	value := headerValue(headers, key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseHeaderResetAt(headers map[string]string) (time.Time, bool) {
	value := headerValue(headers, headerReset)
	if value == "" {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

func httpDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC1123, time.RFC1123Z} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("ratelimit: invalid http date %q", value)
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

// MemoryStateStore keeps throttle state for the life of the process.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key Key) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[key.normalize().String()]
	if !ok {
		return State{}, ErrStateNotFound
	}
	state.Metadata = cloneMap(state.Metadata)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = state.Key.normalize()
	state.Metadata = cloneMap(state.Metadata)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.Key.String()] = state
	return nil
}
