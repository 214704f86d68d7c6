package members

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestProfileCacheExpiresEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	cache := NewProfileCache(time.Minute, clock.Now)
	member := models.Member{ID: uuid.New(), ExternalSubject: "sub-1"}

	cache.Put(member)
	got, ok := cache.Get("sub-1")
	if !ok || got.ID != member.ID {
		t.Fatalf("expected cached member, got %+v ok=%v", got, ok)
	}

	clock.Advance(59 * time.Second)
	if _, ok := cache.Get("sub-1"); !ok {
		t.Fatalf("entry expired early")
	}

	clock.Advance(time.Second)
	if _, ok := cache.Get("sub-1"); ok {
		t.Fatalf("entry should have expired at ttl")
	}
	if cache.Len() != 0 {
		t.Fatalf("expired entry not evicted, len=%d", cache.Len())
	}
}

func TestProfileCacheDoesNotShareProfileFields(t *testing.T) {
	cache := NewProfileCache(time.Minute, nil)
	name := "Grace"
	email := "grace@example.org"
	cache.Put(models.Member{ID: uuid.New(), ExternalSubject: "sub-1", DisplayName: &name, Email: &email})

	name = "changed by caller"
	got, ok := cache.Get("sub-1")
	if !ok {
		t.Fatalf("expected cached member")
	}
	if *got.DisplayName != "Grace" {
		t.Fatalf("cached name followed caller mutation: %q", *got.DisplayName)
	}

	*got.Email = "mutated@example.org"
	again, _ := cache.Get("sub-1")
	if *again.Email != "grace@example.org" {
		t.Fatalf("cached email changed through returned copy: %q", *again.Email)
	}
	if again.Phone != nil {
		t.Fatalf("nil phone should stay nil")
	}
}

func TestProfileCacheInvalidate(t *testing.T) {
	cache := NewProfileCache(time.Minute, nil)
	cache.Put(models.Member{ID: uuid.New(), ExternalSubject: "sub-1"})
	cache.Put(models.Member{ID: uuid.New(), ExternalSubject: "sub-2"})
	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	cache.Invalidate("sub-1")
	if _, ok := cache.Get("sub-1"); ok {
		t.Fatalf("invalidated entry still served")
	}
	if _, ok := cache.Get("sub-2"); !ok {
		t.Fatalf("unrelated entry dropped")
	}
}

func TestProfileCacheDisabled(t *testing.T) {
	cache := NewProfileCache(0, nil)
	cache.Put(models.Member{ID: uuid.New(), ExternalSubject: "sub-1"})
	if _, ok := cache.Get("sub-1"); ok {
		t.Fatalf("zero ttl cache should not serve entries")
	}

	var nilCache *ProfileCache
	nilCache.Put(models.Member{ExternalSubject: "x"})
	nilCache.Invalidate("x")
	if _, ok := nilCache.Get("x"); ok || nilCache.Len() != 0 {
		t.Fatalf("nil cache should be inert")
	}
}

func TestProfileCacheConcurrentAccess(t *testing.T) {
	cache := NewProfileCache(time.Minute, nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subject := "sub-" + string(rune('a'+i%4))
			cache.Put(models.Member{ID: uuid.New(), ExternalSubject: subject})
			cache.Get(subject)
			if i%5 == 0 {
				cache.Invalidate(subject)
			}
		}(i)
	}
	wg.Wait()
	if cache.Len() > 4 {
		t.Fatalf("expected at most 4 subjects, got %d", cache.Len())
	}
}
