// Package querycache keeps cached query results consistent across mutations.
//
// Every cached entry is keyed by the read operation it came from and carries
// a set of tags. Mutations declare which tags they touch; on success every
// entry whose tag set intersects the declared set is marked stale, and
// entries with live subscribers are refetched automatically. Concurrent
// queries for the same key coalesce onto a single in-flight fetch.
package querycache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/splitsmart/splitsmart-go/internal/infra/observability"
)

var tracer = otel.Tracer("querycache")

// Key identifies one parameterized read operation, e.g. "groups" or
// "groups/42/balances".
type Key string

// Tag labels cache entries for bulk invalidation. ID scopes the tag to one
// entity ("GroupExpenses" for group 42 does not touch group 7); an empty ID
// is the unparameterized form.
type Tag struct {
	Type string
	ID   string
}

func (t Tag) String() string {
	if t.ID == "" {
		return t.Type
	}
	return fmt.Sprintf("%s(%s)", t.Type, t.ID)
}

// State is the freshness state of a cache entry. An entry in StateFetching
// transitions only to StateFresh (success) or StateStale (failure).
type State int

const (
	StateFetching State = iota + 1
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Fetcher loads the value for a cache entry from the backend.
type Fetcher func(ctx context.Context) (any, error)

// Event notifies a subscriber that its entry changed state. Value carries
// the last known value (possibly stale), Err the last fetch error if any.
type Event struct {
	Key   Key
	State State
	Value any
	Err   error
}

type entry struct {
	key     Key
	tags    []Tag
	state   State
	value   any
	lastErr error
	fetch   Fetcher

	// inflight is non-nil while state == StateFetching and closed when the
	// fetch completes, so coalesced callers can wait on it.
	inflight chan struct{}

	// restale marks an entry invalidated mid-fetch: the completing fetch
	// lands stale instead of fresh and triggers another round.
	restale bool

	subs map[uuid.UUID]chan Event
}

// Store owns all cache entries. It is constructed once per process and
// mutated only through Query, Refetch and Mutate.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*entry

	fetchTimeout time.Duration
	logger       *zap.Logger
	metrics      *observability.Metrics
}

// New creates an empty store. fetchTimeout bounds the background refetches
// triggered by invalidation, which run outside any caller's context.
func New(logger *zap.Logger, metrics *observability.Metrics, fetchTimeout time.Duration) *Store {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Store{
		entries:      make(map[Key]*entry),
		fetchTimeout: fetchTimeout,
		logger:       logger,
		metrics:      metrics,
	}
}

// Subscription is a live interest in one cache entry. Entries are
// reference-counted by their subscriptions and evicted when the last one
// closes.
type Subscription struct {
	id     uuid.UUID
	key    Key
	events chan Event
	store  *Store
	once   sync.Once
}

// Events delivers entry-state-changed notifications. Slow consumers may
// miss intermediate events; the latest state is always available via Query.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unsubscribes. The entry is evicted once no subscribers remain; a
// fetch still in flight for it completes harmlessly and its result is
// discarded.
func (s *Subscription) Close() {
	s.once.Do(func() {
		st := s.store
		st.mu.Lock()
		if e := st.entries[s.key]; e != nil {
			delete(e.subs, s.id)
			if len(e.subs) == 0 {
				delete(st.entries, s.key)
				st.logger.Debug("cache entry evicted", zap.String("key", string(s.key)))
			}
		}
		st.mu.Unlock()
	})
}

// Query returns the cached value for key, fetching it first if the entry is
// absent or stale, and registers a subscription for the caller. Concurrent
// queries for the same key share a single fetch and receive the same result.
// On fetch failure the previous value (if any) is returned alongside the
// error, so screens can show stale-with-error.
func (s *Store) Query(ctx context.Context, key Key, tags []Tag, fetch Fetcher) (any, *Subscription, error) {
	ctx, span := tracer.Start(ctx, "Store.Query")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", string(key)))

	s.mu.Lock()
	e := s.entries[key]
	if e == nil {
		e = &entry{
			key:   key,
			state: StateStale,
			subs:  make(map[uuid.UUID]chan Event),
		}
		s.entries[key] = e
	}
	// The latest caller owns the tag set and fetcher for this key.
	e.tags = tags
	e.fetch = fetch
	sub := s.subscribeLocked(e)

	switch e.state {
	case StateFresh:
		s.metrics.IncrCacheHit("query")
		v := e.value
		s.mu.Unlock()
		return v, sub, nil

	case StateFetching:
		done := e.inflight
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			sub.Close()
			return nil, nil, ctx.Err()
		case <-done:
		}
		s.mu.Lock()
		v, err := e.value, e.lastErr
		s.mu.Unlock()
		return v, sub, err

	default: // stale or brand new
		s.metrics.IncrCacheMiss("query")
		v, err := s.fetchLocked(ctx, e)
		return v, sub, err
	}
}

// Refetch forces a refresh of an existing entry, serving the explicit
// user-triggered retry affordance. It joins an in-flight fetch if one is
// already running.
func (s *Store) Refetch(ctx context.Context, key Key) (any, error) {
	ctx, span := tracer.Start(ctx, "Store.Refetch")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", string(key)))

	s.mu.Lock()
	e := s.entries[key]
	if e == nil || e.fetch == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("querycache: no entry for key %q", key)
	}
	if e.state == StateFetching {
		done := e.inflight
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
		}
		s.mu.Lock()
		v, err := e.value, e.lastErr
		s.mu.Unlock()
		return v, err
	}
	return s.fetchLocked(ctx, e)
}

// Mutate runs op and, only on success, marks every entry whose tags
// intersect invalidates as stale. Invalidation is applied before Mutate
// returns, so a render issued right after a successful mutation can never
// observe the pre-mutation cache as fresh. On failure the operation's error
// propagates unchanged and nothing is invalidated.
func (s *Store) Mutate(ctx context.Context, op func(context.Context) (any, error), invalidates []Tag) (any, error) {
	ctx, span := tracer.Start(ctx, "Store.Mutate")
	defer span.End()

	result, err := op(ctx)
	if err != nil {
		return nil, err
	}
	s.Invalidate(invalidates...)
	return result, nil
}

// Invalidate marks every entry whose tag set intersects tags as stale and
// schedules an automatic refetch for entries that still have subscribers.
// Entries outside the declared tag set are never touched.
func (s *Store) Invalidate(tags ...Tag) {
	if len(tags) == 0 {
		return
	}

	s.mu.Lock()
	var refetchKeys []Key
	for _, e := range s.entries {
		if !intersects(e.tags, tags) {
			continue
		}
		switch e.state {
		case StateFetching:
			e.restale = true
		default:
			e.state = StateStale
			s.notifyLocked(e)
			if len(e.subs) > 0 {
				refetchKeys = append(refetchKeys, e.key)
			}
		}
		s.logger.Debug("cache entry invalidated",
			zap.String("key", string(e.key)),
			zap.Int("subscribers", len(e.subs)),
		)
	}
	s.mu.Unlock()

	for _, t := range tags {
		s.metrics.IncrInvalidation(t.Type)
	}
	for _, k := range refetchKeys {
		go s.refetch(k)
	}
}

// fetchLocked runs the entry's fetcher. The caller must hold s.mu; the lock
// is released before the network call and the method returns unlocked.
func (s *Store) fetchLocked(ctx context.Context, e *entry) (any, error) {
	done := make(chan struct{})
	e.state = StateFetching
	e.inflight = done
	fetch := e.fetch
	key := e.key
	s.mu.Unlock()

	v, err := fetch(ctx)

	s.mu.Lock()
	if err != nil {
		// Failure: back to stale, previous value stays visible.
		e.state = StateStale
		e.lastErr = err
		s.metrics.IncrFetch("error")
		s.logger.Debug("fetch failed",
			zap.String("key", string(key)),
			zap.Error(err),
		)
	} else {
		e.value = v
		e.lastErr = nil
		if e.restale {
			e.state = StateStale
		} else {
			e.state = StateFresh
		}
		s.metrics.IncrFetch("success")
	}
	again := e.restale && err == nil && len(e.subs) > 0
	e.restale = false
	e.inflight = nil
	close(done)
	val := e.value
	s.notifyLocked(e)
	s.mu.Unlock()

	if again {
		go s.refetch(key)
	}
	return val, err
}

// refetch refreshes an entry in the background after invalidation. It runs
// outside any caller's context, bounded by the store's fetch timeout.
func (s *Store) refetch(key Key) {
	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()

	s.mu.Lock()
	e := s.entries[key]
	if e == nil || e.fetch == nil || e.state == StateFetching || len(e.subs) == 0 {
		s.mu.Unlock()
		return
	}
	_, _ = s.fetchLocked(ctx, e)
}

func (s *Store) subscribeLocked(e *entry) *Subscription {
	sub := &Subscription{
		id:     uuid.New(),
		key:    e.key,
		events: make(chan Event, 16),
		store:  s,
	}
	e.subs[sub.id] = sub.events
	return sub
}

// notifyLocked fans the entry's current state out to all subscribers.
// Sends never block; a full channel just drops the event.
func (s *Store) notifyLocked(e *entry) {
	ev := Event{Key: e.key, State: e.state, Value: e.value, Err: e.lastErr}
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func intersects(entryTags, invalidated []Tag) bool {
	for _, et := range entryTags {
		for _, it := range invalidated {
			if et == it {
				return true
			}
		}
	}
	return false
}

// QueryAs is a typed wrapper over Store.Query.
func QueryAs[T any](ctx context.Context, s *Store, key Key, tags []Tag, fetch func(ctx context.Context) (T, error)) (T, *Subscription, error) {
	v, sub, err := s.Query(ctx, key, tags, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	typed, _ := v.(T)
	return typed, sub, err
}
