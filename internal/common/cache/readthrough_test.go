package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"places-cache/internal/common/logging"
)

type place struct {
	PlaceID          string `json:"place_id"`
	FormattedAddress string `json:"formatted_address,omitempty"`
}

func hasAddress(p place) bool { return p.FormattedAddress != "" }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryDurable is an in-memory DurableTier that counts calls.
type memoryDurable struct {
	mu       sync.Mutex
	entries  map[string]Entry
	gets     int
	upserts  int
	readErr  error
	writeErr error
}

func newMemoryDurable() *memoryDurable {
	return &memoryDurable{entries: make(map[string]Entry)}
}

func (m *memoryDurable) Name() string { return "memory" }

func (m *memoryDurable) Get(ctx context.Context, key string, notBefore time.Time) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.readErr != nil {
		return nil, m.readErr
	}
	entry, ok := m.entries[key]
	if !ok || entry.StoredAt.Before(notBefore) {
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (m *memoryDurable) Upsert(ctx context.Context, entry Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.entries[entry.Key] = entry
	return nil
}

func (m *memoryDurable) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets, m.upserts
}

type counter struct {
	calls atomic.Int32
}

func (c *counter) producer(value place, err error) func(ctx context.Context) (place, error) {
	return func(ctx context.Context) (place, error) {
		c.calls.Add(1)
		return value, err
	}
}

func newTestCache(t *testing.T, durable DurableTier, clock *fakeClock, ttl time.Duration) *ReadThrough {
	t.Helper()
	rt := New(NewLRUTier(100, clock.Now), durable, Config{
		FastTTL:    ttl,
		DurableTTL: ttl,
		Now:        clock.Now,
		Logger:     quietLogger(),
	})
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func quietLogger() logging.Logger {
	return logging.NewLogger(logging.LogConfig{Level: logging.ErrorLevel, Output: io.Discard})
}

const week = 7 * 24 * time.Hour

func TestGet_MainStreetScenario(t *testing.T) {
	clock := newFakeClock()
	durable := newMemoryDurable()
	rt := newTestCache(t, durable, clock, week)

	want := place{PlaceID: "p1", FormattedAddress: "123 Main St, CA"}
	c := &counter{}
	opts := Options[place]{Producer: c.producer(want, nil), Validate: hasAddress, FastTTL: week, DurableTTL: week}

	got, err := Get(context.Background(), rt, "123 Main St", opts)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.EqualValues(t, 1, c.calls.Load())

	_, upserts := durable.counts()
	assert.Equal(t, 1, upserts)
	assert.Equal(t, 1, rt.FastLen())

	clock.Advance(6 * 24 * time.Hour)
	got, err = Get(context.Background(), rt, "123 Main St", opts)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.EqualValues(t, 1, c.calls.Load(), "second lookup must not call the producer")
}

func TestGet_IncompleteValueIsNotCached(t *testing.T) {
	clock := newFakeClock()
	durable := newMemoryDurable()
	rt := newTestCache(t, durable, clock, time.Hour)

	partial := place{PlaceID: "p1"}
	c := &counter{}
	opts := Options[place]{Producer: c.producer(partial, nil), Validate: hasAddress}

	for i := 0; i < 3; i++ {
		got, err := Get(context.Background(), rt, "partial", opts)
		require.NoError(t, err)
		assert.Equal(t, partial, got)
	}

	assert.EqualValues(t, 3, c.calls.Load())
	_, upserts := durable.counts()
	assert.Equal(t, 0, upserts)
	assert.Equal(t, 0, rt.FastLen())
}

func TestGet_IncompleteDurableEntryIsAMiss(t *testing.T) {
	clock := newFakeClock()
	durable := newMemoryDurable()
	durable.entries["addr"] = Entry{Key: "addr", Value: []byte(`{"place_id":"p1"}`), StoredAt: clock.Now()}
	rt := newTestCache(t, durable, clock, time.Hour)

	complete := place{PlaceID: "p1", FormattedAddress: "1 Market St"}
	c := &counter{}
	got, err := Get(context.Background(), rt, "addr", Options[place]{Producer: c.producer(complete, nil), Validate: hasAddress})

	require.NoError(t, err)
	assert.Equal(t, complete, got)
	assert.EqualValues(t, 1, c.calls.Load())
	assert.Equal(t, `{"place_id":"p1","formatted_address":"1 Market St"}`, string(durable.entries["addr"].Value))
}

func TestGet_TTLBoundary(t *testing.T) {
	const ttl = time.Hour
	const epsilon = time.Second

	tests := []struct {
		name          string
		advance       time.Duration
		expectedCalls int32
	}{
		{"just inside ttl", ttl - epsilon, 1},
		{"exactly ttl", ttl, 1},
		{"just past ttl", ttl + epsilon, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			rt := newTestCache(t, newMemoryDurable(), clock, ttl)

			c := &counter{}
			opts := Options[place]{Producer: c.producer(place{PlaceID: "p", FormattedAddress: "a"}, nil), Validate: hasAddress}

			_, err := Get(context.Background(), rt, "k", opts)
			require.NoError(t, err)

			clock.Advance(tt.advance)
			_, err = Get(context.Background(), rt, "k", opts)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedCalls, c.calls.Load())
		})
	}
}

func TestGet_KeyNormalization(t *testing.T) {
	clock := newFakeClock()
	rt := newTestCache(t, newMemoryDurable(), clock, time.Hour)

	c := &counter{}
	opts := Options[place]{Producer: c.producer(place{PlaceID: "p", FormattedAddress: "a"}, nil)}

	_, err := Get(context.Background(), rt, "Foo ", opts)
	require.NoError(t, err)
	_, err = Get(context.Background(), rt, "foo", opts)
	require.NoError(t, err)
	_, err = Get(context.Background(), rt, "  FOO", opts)
	require.NoError(t, err)

	assert.EqualValues(t, 1, c.calls.Load())
	assert.Equal(t, "foo", NormalizeKey("\tFoo \n"))
}

func TestGet_DurableWriteFailureIsSwallowed(t *testing.T) {
	clock := newFakeClock()
	durable := newMemoryDurable()
	durable.writeErr = errors.New("disk full")
	rt := newTestCache(t, durable, clock, time.Hour)

	want := place{PlaceID: "p", FormattedAddress: "a"}
	c := &counter{}
	got, err := Get(context.Background(), rt, "k", Options[place]{Producer: c.producer(want, nil), Validate: hasAddress})

	require.NoError(t, err)
	assert.Equal(t, want, got)

	// the fast tier still holds it
	got, err = Get(context.Background(), rt, "k", Options[place]{Producer: c.producer(want, nil), Validate: hasAddress})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.EqualValues(t, 1, c.calls.Load())
}

func TestGet_DurableReadFailureFallsThroughToProducer(t *testing.T) {
	clock := newFakeClock()
	durable := newMemoryDurable()
	durable.readErr = errors.New("connection refused")
	rt := newTestCache(t, durable, clock, time.Hour)

	want := place{PlaceID: "p", FormattedAddress: "a"}
	c := &counter{}
	got, err := Get(context.Background(), rt, "k", Options[place]{Producer: c.producer(want, nil)})

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.EqualValues(t, 1, c.calls.Load())
}

func TestGet_DurableHitWarmsFastTier(t *testing.T) {
	clock := newFakeClock()
	durable := newMemoryDurable()
	durable.entries["k"] = Entry{
		Key:      "k",
		Value:    []byte(`{"place_id":"p1","formatted_address":"123 Main St, CA"}`),
		StoredAt: clock.Now().Add(-time.Minute),
	}
	rt := newTestCache(t, durable, clock, time.Hour)

	c := &counter{}
	opts := Options[place]{Producer: c.producer(place{}, errors.New("must not be called")), Validate: hasAddress}

	got, err := Get(context.Background(), rt, "k", opts)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PlaceID)

	gets, _ := durable.counts()
	assert.Equal(t, 1, gets)

	got, err = Get(context.Background(), rt, "K ", opts)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PlaceID)

	gets, _ = durable.counts()
	assert.Equal(t, 1, gets, "second lookup must be served by the fast tier")
	assert.EqualValues(t, 0, c.calls.Load())
}

func TestGet_WarmedEntryDoesNotOutliveDurableTTL(t *testing.T) {
	clock := newFakeClock()
	durable := newMemoryDurable()
	durable.entries["k"] = Entry{
		Key:      "k",
		Value:    []byte(`{"place_id":"p1","formatted_address":"a"}`),
		StoredAt: clock.Now().Add(-50 * time.Minute),
	}

	rt := New(NewLRUTier(10, clock.Now), durable, Config{
		FastTTL:    30 * time.Minute,
		DurableTTL: time.Hour,
		Now:        clock.Now,
		Logger:     quietLogger(),
	})
	defer rt.Close()

	c := &counter{}
	opts := Options[place]{Producer: c.producer(place{PlaceID: "p2", FormattedAddress: "b"}, nil), Validate: hasAddress}

	got, err := Get(context.Background(), rt, "k", opts)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PlaceID)

	// 20 minutes later the warm record is inside the fast window but its origin
	// is 70 minutes old
	clock.Advance(20 * time.Minute)
	got, err = Get(context.Background(), rt, "k", opts)
	require.NoError(t, err)
	assert.Equal(t, "p2", got.PlaceID)
	assert.EqualValues(t, 1, c.calls.Load())
}

func TestGet_ProducerErrorPropagates(t *testing.T) {
	clock := newFakeClock()
	durable := newMemoryDurable()
	rt := newTestCache(t, durable, clock, time.Hour)

	producerErr := errors.New("OVER_QUERY_LIMIT")
	c := &counter{}
	_, err := Get(context.Background(), rt, "k", Options[place]{Producer: c.producer(place{}, producerErr)})

	assert.Same(t, producerErr, err)
	_, upserts := durable.counts()
	assert.Equal(t, 0, upserts)
}

func TestGet_ProducerErrorDoesNotServeStaleEntry(t *testing.T) {
	clock := newFakeClock()
	rt := newTestCache(t, newMemoryDurable(), clock, time.Hour)

	c := &counter{}
	_, err := Get(context.Background(), rt, "k", Options[place]{Producer: c.producer(place{PlaceID: "p", FormattedAddress: "a"}, nil)})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	producerErr := errors.New("upstream down")
	got, err := Get(context.Background(), rt, "k", Options[place]{Producer: c.producer(place{}, producerErr)})

	assert.ErrorIs(t, err, producerErr)
	assert.Equal(t, place{}, got)
}

func TestGet_NoDurableTier(t *testing.T) {
	clock := newFakeClock()
	rt := newTestCache(t, nil, clock, time.Hour)

	c := &counter{}
	opts := Options[place]{Producer: c.producer(place{PlaceID: "p", FormattedAddress: "a"}, nil)}
	for i := 0; i < 2; i++ {
		_, err := Get(context.Background(), rt, "k", opts)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, c.calls.Load())
}

func TestGet_NoProducer(t *testing.T) {
	rt := newTestCache(t, nil, newFakeClock(), time.Hour)

	_, err := Get(context.Background(), rt, "k", Options[place]{})
	assert.ErrorIs(t, err, ErrNoProducer)
}

func TestGet_UndecodableEntryIsAMiss(t *testing.T) {
	clock := newFakeClock()
	durable := newMemoryDurable()
	durable.entries["k"] = Entry{Key: "k", Value: []byte(`not json`), StoredAt: clock.Now()}
	rt := newTestCache(t, durable, clock, time.Hour)

	c := &counter{}
	got, err := Get(context.Background(), rt, "k", Options[place]{Producer: c.producer(place{PlaceID: "p", FormattedAddress: "a"}, nil)})
	require.NoError(t, err)
	assert.Equal(t, "p", got.PlaceID)
	assert.EqualValues(t, 1, c.calls.Load())
}

func TestGet_CoalescesConcurrentMisses(t *testing.T) {
	clock := newFakeClock()
	rt := New(NewLocalTier(time.Minute), newMemoryDurable(), Config{
		FastTTL:    time.Hour,
		DurableTTL: time.Hour,
		Coalesce:   true,
		Now:        clock.Now,
		Logger:     quietLogger(),
	})
	defer rt.Close()

	release := make(chan struct{})
	var calls atomic.Int32
	opts := Options[place]{
		Producer: func(ctx context.Context) (place, error) {
			calls.Add(1)
			<-release
			return place{PlaceID: "p", FormattedAddress: "a"}, nil
		},
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]place, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Get(context.Background(), rt, "same-key", opts)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// let every goroutine reach the producer or the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		assert.Equal(t, "p", r.PlaceID)
	}
}

func TestGet_ConcurrentDistinctKeys(t *testing.T) {
	clock := newFakeClock()
	rt := newTestCache(t, newMemoryDurable(), clock, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%10)
			_, err := Get(context.Background(), rt, key, Options[place]{
				Producer: func(ctx context.Context) (place, error) {
					return place{PlaceID: key, FormattedAddress: "a"}, nil
				},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, rt.FastLen())
}

func TestGet_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg, "test")
	require.NoError(t, err)

	clock := newFakeClock()
	durable := newMemoryDurable()
	rt := New(NewLRUTier(10, clock.Now), durable, Config{
		FastTTL:    time.Hour,
		DurableTTL: time.Hour,
		Now:        clock.Now,
		Metrics:    metrics,
		Logger:     quietLogger(),
	})
	defer rt.Close()

	c := &counter{}
	opts := Options[place]{Producer: c.producer(place{PlaceID: "p", FormattedAddress: "a"}, nil)}
	_, _ = Get(context.Background(), rt, "k", opts)
	_, _ = Get(context.Background(), rt, "k", opts)

	durable.writeErr = errors.New("read only")
	_, _ = Get(context.Background(), rt, "other", opts)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.hits.WithLabelValues(tierFast)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.misses.WithLabelValues(tierDurable)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.producerCalls.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.durableErrors.WithLabelValues("write")))

	_, err = NewMetrics(reg, "test")
	assert.Error(t, err, "registering twice must fail")
}

// mutexLocker stands in for a distributed lock shared by several processes
type mutexLocker struct {
	mu     sync.Mutex
	locks  atomic.Int32
	err    error
	onLock func()
}

func (l *mutexLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.mu.Lock()
	l.locks.Add(1)
	if l.onLock != nil {
		l.onLock()
	}
	return l.mu.Unlock, nil
}

func newLockedCache(t *testing.T, durable DurableTier, clock *fakeClock, locker Locker) *ReadThrough {
	t.Helper()
	rt := New(NewLRUTier(100, clock.Now), durable, Config{
		FastTTL:    time.Hour,
		DurableTTL: time.Hour,
		Coalesce:   true,
		Now:        clock.Now,
		Logger:     quietLogger(),
		Locker:     locker,
	})
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestGet_LockerRereadsDurableTier(t *testing.T) {
	clock := newFakeClock()
	durable := newMemoryDurable()
	filled := place{PlaceID: "p", FormattedAddress: "filled elsewhere"}
	locker := &mutexLocker{onLock: func() {
		data, _ := json.Marshal(filled)
		_ = durable.Upsert(context.Background(), Entry{Key: "k", Value: data, StoredAt: clock.Now()}, time.Hour)
	}}
	rt := newLockedCache(t, durable, clock, locker)

	c := &counter{}
	v, err := Get(context.Background(), rt, "k", Options[place]{Producer: c.producer(place{}, nil), Validate: hasAddress})
	require.NoError(t, err)

	assert.Equal(t, filled, v)
	assert.EqualValues(t, 0, c.calls.Load())
	assert.EqualValues(t, 1, locker.locks.Load())
}

func TestGet_LockerFailureFallsBackToProducer(t *testing.T) {
	clock := newFakeClock()
	locker := &mutexLocker{err: errors.New("redis down")}
	rt := newLockedCache(t, newMemoryDurable(), clock, locker)

	c := &counter{}
	want := place{PlaceID: "p", FormattedAddress: "a"}
	v, err := Get(context.Background(), rt, "k", Options[place]{Producer: c.producer(want, nil)})
	require.NoError(t, err)
	assert.Equal(t, want, v)
	assert.EqualValues(t, 1, c.calls.Load())
}

func TestGet_LockerIgnoredWithoutDurableTier(t *testing.T) {
	clock := newFakeClock()
	locker := &mutexLocker{}
	rt := newLockedCache(t, nil, clock, locker)

	c := &counter{}
	_, err := Get(context.Background(), rt, "k", Options[place]{Producer: c.producer(place{PlaceID: "p"}, nil)})
	require.NoError(t, err)
	assert.EqualValues(t, 0, locker.locks.Load())
}

func TestGet_LockerCoalescesAcrossProcesses(t *testing.T) {
	clock := newFakeClock()
	durable := newMemoryDurable()
	locker := &mutexLocker{}
	processes := []*ReadThrough{
		newLockedCache(t, durable, clock, locker),
		newLockedCache(t, durable, clock, locker),
	}

	var calls atomic.Int32
	opts := Options[place]{
		Producer: func(ctx context.Context) (place, error) {
			calls.Add(1)
			time.Sleep(20 * time.Millisecond)
			return place{PlaceID: "p", FormattedAddress: "a"}, nil
		},
		Validate: hasAddress,
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(rt *ReadThrough) {
			defer wg.Done()
			v, err := Get(context.Background(), rt, "shared", opts)
			assert.NoError(t, err)
			assert.Equal(t, "a", v.FormattedAddress)
		}(processes[i%2])
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestGet_CoalescedFollowerSurvivesLeaderCancel(t *testing.T) {
	clock := newFakeClock()
	rt := New(NewLocalTier(time.Minute), newMemoryDurable(), Config{
		FastTTL:    time.Hour,
		DurableTTL: time.Hour,
		Coalesce:   true,
		Now:        clock.Now,
		Logger:     quietLogger(),
	})
	defer rt.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	opts := Options[place]{
		Producer: func(ctx context.Context) (place, error) {
			calls.Add(1)
			close(started)
			<-release
			if err := ctx.Err(); err != nil {
				return place{}, err
			}
			return place{PlaceID: "p", FormattedAddress: "a"}, nil
		},
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := Get(leaderCtx, rt, "123 Main St", opts)
		leaderErr <- err
	}()
	<-started

	type result struct {
		v   place
		err error
	}
	follower := make(chan result, 1)
	go func() {
		v, err := Get(context.Background(), rt, "123 main st", opts)
		follower <- result{v, err}
	}()

	// let the follower join the in-flight call
	time.Sleep(50 * time.Millisecond)
	cancelLeader()

	select {
	case err := <-leaderErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled leader kept waiting")
	}

	close(release)
	res := <-follower
	require.NoError(t, res.err)
	assert.Equal(t, "p", res.v.PlaceID)
	assert.EqualValues(t, 1, calls.Load())

	// the shared result was cached even though the leader left
	v, err := Get(context.Background(), rt, "123 Main St", Options[place]{})
	require.NoError(t, err)
	assert.Equal(t, "p", v.PlaceID)
}

func TestGet_CoalescedTypeMismatch(t *testing.T) {
	rt := New(NewLocalTier(time.Minute), nil, Config{
		Coalesce: true,
		Logger:   quietLogger(),
	})
	defer rt.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	leader := make(chan error, 1)
	go func() {
		_, err := Get(context.Background(), rt, "shared", Options[place]{
			Producer: func(ctx context.Context) (place, error) {
				close(started)
				<-release
				return place{PlaceID: "p", FormattedAddress: "a"}, nil
			},
		})
		leader <- err
	}()
	<-started

	follower := make(chan error, 1)
	go func() {
		_, err := Get(context.Background(), rt, "shared", Options[int]{
			Producer: func(ctx context.Context) (int, error) {
				return 42, nil
			},
		})
		follower <- err
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-leader)
	assert.ErrorIs(t, <-follower, ErrTypeMismatch)
}
