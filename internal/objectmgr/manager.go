// Package objectmgr implements the distributed object registry: the
// mapping from a 64-bit encoded ObjectId to either a locally owned
// pointer or a remote placeholder, with reference counting and
// generation-based stale-handle rejection. Grounded on
// DistributedObjectManager (original_source's ObjectManager.h).
package objectmgr

import (
	"errors"
	"sync"

	"github.com/behrlich/das-ipc-host/internal/guid"
)

// ErrInvalidHandle is returned when an encoded id does not correspond to
// any object this manager currently holds: a local_id never registered or
// released and not yet reused, or a remote id never registered.
var ErrInvalidHandle = errors.New("objectmgr: invalid object handle")

// ErrStaleHandle is returned when an encoded id names a slot whose
// current occupant is a later generation than the one the caller holds.
var ErrStaleHandle = errors.New("objectmgr: stale object handle")

// ErrObjectNotFound is returned by LookupObject for a remote object id
// registered through RegisterRemoteObject: the id is known, but this
// manager holds no local pointer for it.
var ErrObjectNotFound = errors.New("objectmgr: object not found")

type entry struct {
	generation uint16
	refcount   uint32
	localPtr   any
}

// freeSlot records a local_id whose entry was removed from slots on
// Release-to-zero, along with the generation its next occupant must be
// assigned.
type freeSlot struct {
	localID    uint32
	generation uint16
}

// Manager tracks every object this session has registered, local or
// remote, keyed by local id within the session's own generation space.
type Manager struct {
	mu            sync.RWMutex
	localSession  uint16
	slots         map[uint32]*entry
	nextLocalID   uint32
	freeSlots     []freeSlot
	remoteObjects map[uint64]struct{}
}

// NewManager constructs a Manager bound to the given local session id.
func NewManager(localSessionID uint16) *Manager {
	return &Manager{
		localSession:  localSessionID,
		slots:         make(map[uint32]*entry),
		nextLocalID:   1,
		remoteObjects: make(map[uint64]struct{}),
	}
}

// RegisterLocalObject binds ptr to a local id and returns its encoded
// ObjectId. A retired slot (refcount dropped to zero by a prior Release)
// is reused in FIFO order at its next generation rather than minting a
// fresh local id, matching the original allocator's slot-reuse behavior.
func (m *Manager) RegisterLocalObject(ptr any) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var localID uint32
	var gen uint16 = 1

	if n := len(m.freeSlots); n > 0 {
		fs := m.freeSlots[0]
		m.freeSlots = m.freeSlots[1:]
		localID = fs.localID
		gen = fs.generation
	} else {
		localID = m.nextLocalID
		m.nextLocalID++
	}

	m.slots[localID] = &entry{
		generation: gen,
		refcount:   1,
		localPtr:   ptr,
	}

	return guid.ObjectId{
		SessionID:  m.localSession,
		Generation: gen,
		LocalID:    localID,
	}.Encode()
}

// RegisterRemoteObject records that objectID names an object owned by a
// peer, so that future LookupObject calls for it return ErrObjectNotFound
// (a known, non-local object) instead of ErrInvalidHandle.
func (m *Manager) RegisterRemoteObject(objectID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteObjects[objectID] = struct{}{}
}

// UnregisterObject removes an object's bookkeeping outright, regardless
// of its current refcount. Used for explicit teardown (session loss,
// forced cleanup), not the normal AddRef/Release lifecycle.
func (m *Manager) UnregisterObject(objectID uint64) error {
	id := guid.DecodeObjectId(objectID)
	if id.SessionID != m.localSession {
		m.mu.Lock()
		delete(m.remoteObjects, objectID)
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.slots[id.LocalID]
	if !ok {
		return ErrInvalidHandle
	}
	if e.generation != id.Generation {
		return ErrStaleHandle
	}
	delete(m.slots, id.LocalID)
	return nil
}

// AddRef increments a local object's reference count.
func (m *Manager) AddRef(objectID uint64) error {
	id := guid.DecodeObjectId(objectID)
	if id.SessionID != m.localSession {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.slots[id.LocalID]
	if !ok {
		return ErrInvalidHandle
	}
	if e.generation != id.Generation {
		return ErrStaleHandle
	}
	e.refcount++
	return nil
}

// Release decrements a local object's reference count. When the count
// reaches zero, the entry is removed from the index outright (so the
// local_id is "unused" for LookupObject, AddRef, and UnregisterObject
// until reused) and the local_id is queued for reuse at its next
// generation (per guid.NextGeneration, skipping zero), so a later lookup
// against the next occupant of this slot with the old generation
// returns ErrStaleHandle instead of resolving to it.
func (m *Manager) Release(objectID uint64) error {
	id := guid.DecodeObjectId(objectID)
	if id.SessionID != m.localSession {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.slots[id.LocalID]
	if !ok {
		return ErrInvalidHandle
	}
	if e.generation != id.Generation {
		return ErrStaleHandle
	}

	e.refcount--
	if e.refcount == 0 {
		delete(m.slots, id.LocalID)
		m.freeSlots = append(m.freeSlots, freeSlot{
			localID:    id.LocalID,
			generation: guid.NextGeneration(e.generation),
		})
	}
	return nil
}

// LookupObject resolves objectID to the locally registered pointer. For
// a remote object id that was only ever passed through RegisterRemoteObject,
// LookupObject returns ErrObjectNotFound: remote ids name a peer-owned
// object this manager never holds a pointer for. A local_id that is
// currently unused — never registered, or retired by Release and not yet
// reused — is ErrInvalidHandle; a local_id reused at a later generation
// than the caller's handle is ErrStaleHandle.
func (m *Manager) LookupObject(objectID uint64) (any, error) {
	id := guid.DecodeObjectId(objectID)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if id.SessionID != m.localSession {
		if _, ok := m.remoteObjects[objectID]; ok {
			return nil, ErrObjectNotFound
		}
		return nil, ErrInvalidHandle
	}

	e, ok := m.slots[id.LocalID]
	if !ok {
		return nil, ErrInvalidHandle
	}
	if e.generation != id.Generation {
		return nil, ErrStaleHandle
	}
	return e.localPtr, nil
}

// IsValidObject reports whether objectID currently resolves to a live
// slot at the expected generation.
func (m *Manager) IsValidObject(objectID uint64) bool {
	_, err := m.LookupObject(objectID)
	return err == nil || errors.Is(err, ErrObjectNotFound)
}

// IsLocalObject reports whether objectID names an object registered on
// this session.
func (m *Manager) IsLocalObject(objectID uint64) bool {
	return guid.DecodeObjectId(objectID).SessionID == m.localSession
}
