package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(ttl time.Duration) (*DocumentCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := NewDocumentCache(ttl)
	c.now = clock.Now
	return c, clock
}

func TestRetrieveWithinTTL(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Store("user-1", "conv-1", []byte("pdf-bytes"), true)

	clock.Advance(time.Minute - time.Second)

	payload, pending, key := c.Retrieve("user-1", "conv-1")
	require.NotNil(t, payload)
	assert.Equal(t, []byte("pdf-bytes"), payload)
	assert.True(t, pending)
	assert.Equal(t, "user-1:conv-1", key)
}

func TestRetrieveAfterTTLMisses(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Store("user-1", "conv-1", []byte("pdf-bytes"), false)

	clock.Advance(time.Minute + time.Second)

	payload, pending, key := c.Retrieve("user-1", "conv-1")
	assert.Nil(t, payload)
	assert.False(t, pending)
	assert.Empty(t, key)
}

func TestGenericKeyFallback(t *testing.T) {
	tests := []struct {
		name          string
		storeSession  string
		lookupSession string
		wantKey       string
	}{
		{
			name:          "lookup without session id",
			storeSession:  "conv-1",
			lookupSession: "",
			wantKey:       "user-1:*",
		},
		{
			name:          "lookup with rotated session id",
			storeSession:  "conv-1",
			lookupSession: "conv-2",
			wantKey:       "user-1:*",
		},
		{
			name:          "lookup with matching session id",
			storeSession:  "conv-1",
			lookupSession: "conv-1",
			wantKey:       "user-1:conv-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCache(time.Minute)
			c.Store("user-1", tt.storeSession, []byte("doc"), false)

			payload, _, key := c.Retrieve("user-1", tt.lookupSession)
			require.NotNil(t, payload)
			assert.Equal(t, []byte("doc"), payload)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestStoreWithoutSessionOnlyWritesGeneric(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Store("user-1", "", []byte("doc"), false)

	payload, _, key := c.Retrieve("user-1", "conv-9")
	require.NotNil(t, payload)
	assert.Equal(t, "user-1:*", key)
}

func TestUpdateStatus(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Store("user-1", "conv-1", []byte("doc"), true)

	_, _, key := c.Retrieve("user-1", "conv-1")
	require.NotEmpty(t, key)

	assert.True(t, c.UpdateStatus(key, false))

	_, pending, _ := c.Retrieve("user-1", "conv-1")
	assert.False(t, pending)

	assert.False(t, c.UpdateStatus("user-1:unknown", false))
}

func TestSweepExpired(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Store("user-1", "conv-1", []byte("old"), false)

	clock.Advance(2 * time.Minute)
	c.Store("user-2", "conv-2", []byte("fresh"), false)

	// user-1 wrote specific + generic keys, both expired.
	assert.Equal(t, 2, c.SweepExpired())

	payload, _, _ := c.Retrieve("user-2", "conv-2")
	assert.NotNil(t, payload)
}

func TestConcurrentStoreAndStatus(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Store("user-1", "conv-1", []byte("doc"), true)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				c.Store("user-1", "conv-1", []byte(fmt.Sprintf("doc-%d", i)), true)
			} else {
				c.UpdateStatus("user-1:conv-1", false)
			}
		}(i)
	}
	wg.Wait()

	// Whatever interleaving occurred, the entry must still be live and
	// internally consistent: a retrievable payload with a defined flag.
	payload, _, key := c.Retrieve("user-1", "conv-1")
	require.NotNil(t, payload)
	assert.Equal(t, "user-1:conv-1", key)

	// A final status update always wins.
	require.True(t, c.UpdateStatus(key, false))
	_, pending, _ := c.Retrieve("user-1", "conv-1")
	assert.False(t, pending)
}
