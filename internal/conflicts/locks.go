package conflicts

import (
	"sync"

	"github.com/google/uuid"

	"github.com/finledger/collab/internal/domain"
)

// entityRef keys the per-entity lock table.
type entityRef struct {
	entityType domain.EntityType
	entityID   uuid.UUID
}

// EntityLocks serializes writers per (entityType, entityId). The compare-and-
// set inside ProposeWrite and the version append inside Resolve both run under
// the entity's lock, so no two writers can observe the same current version
// and both append. Entries are reference counted and removed once unheld.
type EntityLocks struct {
	mu    sync.Mutex
	locks map[entityRef]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

// NewEntityLocks creates an empty lock table.
func NewEntityLocks() *EntityLocks {
	return &EntityLocks{locks: make(map[entityRef]*entityLock)}
}

// Lock acquires the lock for one entity, creating it on first use.
func (l *EntityLocks) Lock(entityType domain.EntityType, entityID uuid.UUID) {
	ref := entityRef{entityType: entityType, entityID: entityID}

	l.mu.Lock()
	lock, ok := l.locks[ref]
	if !ok {
		lock = &entityLock{}
		l.locks[ref] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
}

// Unlock releases the lock for one entity and discards it when no other
// holder is waiting.
func (l *EntityLocks) Unlock(entityType domain.EntityType, entityID uuid.UUID) {
	ref := entityRef{entityType: entityType, entityID: entityID}

	l.mu.Lock()
	lock, ok := l.locks[ref]
	if !ok {
		l.mu.Unlock()
		return
	}
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, ref)
	}
	l.mu.Unlock()

	lock.mu.Unlock()
}
