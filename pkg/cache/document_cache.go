package cache

import (
	"sync"
	"time"
)

// DefaultTTL is how long an uploaded document stays retrievable.
const DefaultTTL = 15 * time.Minute

// entry is one cached blob with its insertion timestamp.
type entry struct {
	payload []byte
	ts      time.Time
	pending bool
}

// DocumentCache is a thread-safe TTL cache for uploaded document blobs.
// Every Store writes two keys: the specific "subject:session" key and the
// generic "subject:*" key, so a later request that lost its session id
// still resolves to the most recent upload for that subject.
type DocumentCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

// NewDocumentCache creates a cache with the given TTL. A non-positive ttl
// falls back to DefaultTTL.
func NewDocumentCache(ttl time.Duration) *DocumentCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DocumentCache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Key builds the cache key for a subject and session. An empty session id
// yields the generic fallback key "subject:*".
func Key(subjectID, sessionID string) string {
	if sessionID == "" {
		sessionID = "*"
	}
	return subjectID + ":" + sessionID
}

// Store caches payload under both the specific and the generic key, both
// stamped with the same insertion time.
func (c *DocumentCache) Store(subjectID, sessionID string, payload []byte, pending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now()
	if sessionID != "" {
		c.entries[Key(subjectID, sessionID)] = &entry{payload: payload, ts: ts, pending: pending}
	}
	c.entries[Key(subjectID, "")] = &entry{payload: payload, ts: ts, pending: pending}
}

// Retrieve looks up the specific key first and only falls back to the
// generic key when the specific entry is absent or expired. Expired entries
// are removed on the way. A miss returns (nil, false, "").
func (c *DocumentCache) Retrieve(subjectID, sessionID string) (payload []byte, pending bool, matchedKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if payload, pending, matchedKey = c.get(Key(subjectID, sessionID)); payload != nil {
		return payload, pending, matchedKey
	}
	return c.get(Key(subjectID, ""))
}

// get returns a live entry under key, evicting it first if expired.
// Caller must hold c.mu.
func (c *DocumentCache) get(key string) ([]byte, bool, string) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false, ""
	}
	if c.now().Sub(e.ts) > c.ttl {
		delete(c.entries, key)
		return nil, false, ""
	}
	return e.payload, e.pending, key
}

// UpdateStatus flips the pending flag of an existing entry. Returns false
// when the key is unknown.
func (c *DocumentCache) UpdateStatus(key string, pending bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.pending = pending
	return true
}

// SweepExpired eagerly removes all expired entries and reports how many
// were dropped.
func (c *DocumentCache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.ts) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
