package members

import (
	"sync"
	"time"

	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
)

// Clock is the time source used for cache expiry.
type Clock func() time.Time

type cacheEntry struct {
	member    models.Member
	expiresAt time.Time
}

// ProfileCache keeps recently resolved members keyed by external subject.
// Members are deep-copied in and out, pointer fields included.
type ProfileCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     Clock
	entries map[string]cacheEntry
}

// NewProfileCache returns a cache whose entries live for ttl. A nil clock uses time.Now.
func NewProfileCache(ttl time.Duration, now Clock) *ProfileCache {
	if now == nil {
		now = time.Now
	}
	return &ProfileCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *ProfileCache) Get(subject string) (models.Member, bool) {
	if c == nil || c.ttl <= 0 {
		return models.Member{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[subject]
	c.mu.RUnlock()
	if !ok {
		return models.Member{}, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if current, still := c.entries[subject]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, subject)
		}
		c.mu.Unlock()
		return models.Member{}, false
	}
	return cloneMember(entry.member), true
}

func (c *ProfileCache) Put(member models.Member) {
	if c == nil || c.ttl <= 0 || member.ExternalSubject == "" {
		return
	}
	c.mu.Lock()
	c.entries[member.ExternalSubject] = cacheEntry{member: cloneMember(member), expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *ProfileCache) Invalidate(subject string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, subject)
	c.mu.Unlock()
}

// Len counts entries, including expired ones not yet evicted.
func (c *ProfileCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cloneMember(m models.Member) models.Member {
	m.DisplayName = cloneString(m.DisplayName)
	m.Email = cloneString(m.Email)
	m.Phone = cloneString(m.Phone)
	return m
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
