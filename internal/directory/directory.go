package directory

import (
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/nlpmodel/internal/model"
)

// UserStore defines the storage operations the Directory needs.
// Implemented by storage.Store.
type UserStore interface {
	SaveUser(u model.User) error
	GetUser(id int64) (model.User, error)
	ListUsers(limit, offset int) ([]model.User, error)
	DeleteUser(id int64) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	user     model.User
	cachedAt time.Time
}

// Directory is the user-directory lookup service. Lookups are served from a
// per-user TTL cache in front of the store. Returned users are immutable
// snapshots, so cached values are shared without copying.
type Directory struct {
	store UserStore
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[int64]cacheEntry
}

// New creates a Directory with the given cache TTL. A ttl <= 0 defaults to 60s.
func New(store UserStore, ttl time.Duration) *Directory {
	return NewWithClock(store, realClock{}, ttl)
}

// NewWithClock creates a Directory with a custom clock (for testing).
func NewWithClock(store UserStore, clock Clock, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Directory{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[int64]cacheEntry),
	}
}

// Lookup returns the user with the given id.
func (d *Directory) Lookup(id int64) (model.User, error) {
	// Fast path: read lock for cache hit.
	d.mu.RLock()
	if e, ok := d.cache[id]; ok && d.fresh(e) {
		d.mu.RUnlock()
		return e.user, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring write lock.
	if e, ok := d.cache[id]; ok && d.fresh(e) {
		return e.user, nil
	}

	u, err := d.store.GetUser(id)
	if err != nil {
		return model.User{}, fmt.Errorf("looking up user %d: %w", id, err)
	}
	d.cache[id] = cacheEntry{user: u, cachedAt: d.clock.Now()}
	return u, nil
}

// Register persists u and invalidates its cache entry.
func (d *Directory) Register(u model.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.store.SaveUser(u); err != nil {
		return fmt.Errorf("saving user %d: %w", u.ID(), err)
	}
	delete(d.cache, u.ID())
	return nil
}

// Remove deletes the user and its cache entry.
func (d *Directory) Remove(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.store.DeleteUser(id); err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	delete(d.cache, id)
	return nil
}

// List returns a page of users straight from the store.
func (d *Directory) List(limit, offset int) ([]model.User, error) {
	users, err := d.store.ListUsers(limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

func (d *Directory) fresh(e cacheEntry) bool {
	return d.clock.Now().Before(e.cachedAt.Add(d.ttl))
}
