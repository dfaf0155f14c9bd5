package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(key string, at time.Time) Record {
	return Record{Entry: Entry{Key: key, Value: []byte(`{}`), StoredAt: at}, CachedAt: at}
}

func TestLRUTier_Basic(t *testing.T) {
	clock := newFakeClock()
	tier := NewLRUTier(10, clock.Now)

	_, found := tier.Get("missing")
	assert.False(t, found)

	tier.Set("a", testRecord("a", clock.Now()), time.Minute)
	record, found := tier.Get("a")
	require.True(t, found)
	assert.Equal(t, "a", record.Entry.Key)
	assert.Equal(t, 1, tier.Len())
}

func TestLRUTier_Overwrite(t *testing.T) {
	clock := newFakeClock()
	tier := NewLRUTier(10, clock.Now)

	tier.Set("a", testRecord("a", clock.Now()), time.Minute)
	clock.Advance(time.Second)
	tier.Set("a", testRecord("a", clock.Now()), time.Minute)

	record, found := tier.Get("a")
	require.True(t, found)
	assert.Equal(t, clock.Now(), record.Entry.StoredAt)
	assert.Equal(t, 1, tier.Len())
	assert.Zero(t, tier.Evictions())
}

func TestLRUTier_Expiry(t *testing.T) {
	clock := newFakeClock()
	tier := NewLRUTier(10, clock.Now)

	tier.Set("a", testRecord("a", clock.Now()), time.Minute)
	tier.Set("forever", testRecord("forever", clock.Now()), 0)

	clock.Advance(time.Minute + time.Millisecond)

	_, found := tier.Get("a")
	assert.False(t, found)
	_, found = tier.Get("forever")
	assert.True(t, found)
	assert.Equal(t, 1, tier.Len())
}

func TestLRUTier_EvictsLeastRecentlyUsed(t *testing.T) {
	clock := newFakeClock()
	tier := NewLRUTier(3, clock.Now)

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("k%d", i)
		tier.Set(key, testRecord(key, clock.Now()), time.Hour)
	}

	// touch k0 so k1 becomes the oldest
	_, found := tier.Get("k0")
	require.True(t, found)

	tier.Set("k3", testRecord("k3", clock.Now()), time.Hour)

	_, found = tier.Get("k1")
	assert.False(t, found)
	for _, key := range []string{"k0", "k2", "k3"} {
		_, found := tier.Get(key)
		assert.True(t, found, key)
	}
	assert.Equal(t, 3, tier.Len())
	assert.Equal(t, uint64(1), tier.Evictions())
}

func TestLRUTier_Close(t *testing.T) {
	tier := NewLRUTier(0, nil)
	tier.Set("a", testRecord("a", time.Now()), time.Hour)

	require.NoError(t, tier.Close())
	assert.Equal(t, 0, tier.Len())
}

func TestLocalTier(t *testing.T) {
	tier := NewLocalTier(time.Minute)
	defer tier.Close()

	now := time.Now()
	tier.Set("a", testRecord("a", now), time.Hour)
	tier.Set("b", testRecord("b", now), 0)

	record, found := tier.Get("a")
	require.True(t, found)
	assert.Equal(t, "a", record.Entry.Key)

	_, found = tier.Get("b")
	assert.True(t, found)
	assert.Equal(t, 2, tier.Len())

	tier.Set("short", testRecord("short", now), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_, found = tier.Get("short")
	assert.False(t, found)

	require.NoError(t, tier.Close())
	assert.Equal(t, 0, tier.Len())
}

func TestEntryFreshAt(t *testing.T) {
	stored := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := Entry{StoredAt: stored}

	tests := []struct {
		name  string
		now   time.Time
		fresh bool
	}{
		{"same instant", stored, true},
		{"inside window", stored.Add(59 * time.Minute), true},
		{"at boundary", stored.Add(time.Hour), true},
		{"past boundary", stored.Add(time.Hour + time.Nanosecond), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fresh, entry.FreshAt(tt.now, time.Hour))
		})
	}
}
