package collab

import (
	"context"
	"sync"
	"time"

	"github.com/collab-docs/backend/internal/apperr"
	"github.com/collab-docs/backend/internal/cache"
	"github.com/collab-docs/backend/internal/logger"
	"github.com/collab-docs/backend/internal/store"
)

// admissionRetries and admissionWait bound how long GetOrCreate waits for
// a free slot before rejecting a brand-new document as overloaded.
const (
	admissionRetries = 3
	admissionWait    = 50 * time.Millisecond
)

// RoomManager owns the set of currently-live documents on this instance.
// GetOrCreate is serialized per id so two concurrent first-attaches for
// the same document never spin up two actors racing over the same row.
type RoomManager struct {
	ctx        context.Context
	instanceID string
	store      *store.Store
	cache      *cache.Cache
	cfg        RoomConfig
	maxRooms   int

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRoomManager constructs a manager bound to ctx; canceling ctx tears
// down every room it currently holds. maxLiveDocuments caps how many
// distinct documents this instance holds live at once; zero or negative
// means unbounded.
func NewRoomManager(ctx context.Context, instanceID string, st *store.Store, ca *cache.Cache, cfg RoomConfig, maxLiveDocuments int) *RoomManager {
	return &RoomManager{
		ctx:        ctx,
		instanceID: instanceID,
		store:      st,
		cache:      ca,
		cfg:        cfg,
		maxRooms:   maxLiveDocuments,
		rooms:      make(map[string]*Room),
	}
}

// GetOrCreate returns the live room for id, starting its actor goroutine
// the first time it's requested on this instance. Creating a brand-new
// room while the instance is already at its live-document ceiling waits
// briefly for a slot to free up, then fails with apperr.KindOverloaded —
// attaching to a document that's already live is never rejected this way.
func (m *RoomManager) GetOrCreate(id string) (*Room, error) {
	for attempt := 0; ; attempt++ {
		m.mu.Lock()
		if r, ok := m.rooms[id]; ok {
			m.mu.Unlock()
			return r, nil
		}
		if m.maxRooms <= 0 || len(m.rooms) < m.maxRooms {
			r := newRoom(m.ctx, id, m.instanceID, m.store, m.cache, m.cfg)
			m.rooms[id] = r
			m.mu.Unlock()
			go func() {
				r.Run()
				m.forget(id, r)
			}()
			return r, nil
		}
		m.mu.Unlock()

		if attempt >= admissionRetries {
			return nil, apperr.New(apperr.KindOverloaded, "instance is at its live-document ceiling")
		}
		time.Sleep(admissionWait)
	}
}

// forget removes r from the registry once its actor has exited, but only
// if it's still the room registered under id (a fresh GetOrCreate may
// already have replaced it).
func (m *RoomManager) forget(id string, r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[id] == r {
		delete(m.rooms, id)
	}
}

// Count reports how many documents are currently live on this instance.
func (m *RoomManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// DrainAll forces every live room through its forced-flush path and waits
// for them to finish, bounded by grace. Used on graceful shutdown so no
// dirty in-memory edits are lost.
func (m *RoomManager) DrainAll(grace time.Duration) {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	if len(rooms) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	var wg sync.WaitGroup
	for _, r := range rooms {
		wg.Add(1)
		go func(r *Room) {
			defer wg.Done()
			r.Drain(ctx)
		}(r)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("[room-manager] all %d live documents drained", len(rooms))
	case <-ctx.Done():
		logger.Warn("[room-manager] drain grace period expired with rooms still flushing")
	}
}
