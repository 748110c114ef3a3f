package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Hangulling/dorandoran-chat/internal/log"
)

// Conn is the outbound side of one attached client stream. Implementations
// must enforce their own write deadline: a hung client surfaces here as a
// write error, never as a blocked call.
type Conn interface {
	WriteEvent(eventType string, data []byte) error
}

// Handle is one live registration: a single Conn bound to exactly one room
// and the authenticated user behind it. The registry owns it for its
// lifetime.
type Handle struct {
	ID     string
	RoomID string
	UserID string
	conn   Conn
}

// Registry tracks the set of open outbound connections per room. It is the
// only mutable shared state in the delivery core and is safe for concurrent
// Attach/Send/Detach from arbitrarily many goroutines.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Handle]struct{}
}

func New() *Registry {
	return &Registry{
		rooms: make(map[string]map[*Handle]struct{}),
	}
}

// Attach registers a new connection for a room and returns its handle.
// Authorization has already been checked by the caller.
func (r *Registry) Attach(roomID, userID string, conn Conn) *Handle {
	h := &Handle{
		ID:     uuid.New().String(),
		RoomID: roomID,
		UserID: userID,
		conn:   conn,
	}

	r.mu.Lock()
	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[*Handle]struct{})
		r.rooms[roomID] = set
	}
	set[h] = struct{}{}
	r.mu.Unlock()

	l := log.L()
	l.Debug().
		Str(log.FieldHandleID, h.ID).
		Str(log.FieldRoomID, roomID).
		Str(log.FieldUserID, userID).
		Msg("connection attached")

	return h
}

// Send pushes an event to every connection attached to the room at call
// time. The handle set is snapshotted before writing, so writes never run
// under the lock and a slow room cannot block attach/detach on other rooms.
// A write failure detaches that handle only; the rest still receive the
// event. Returns the number of successful deliveries.
func (r *Registry) Send(roomID, eventType string, data []byte) int {
	r.mu.RLock()
	set, ok := r.rooms[roomID]
	if !ok || len(set) == 0 {
		r.mu.RUnlock()
		return 0
	}
	snapshot := make([]*Handle, 0, len(set))
	for h := range set {
		snapshot = append(snapshot, h)
	}
	r.mu.RUnlock()

	l := log.L()
	delivered := 0
	for _, h := range snapshot {
		if err := h.conn.WriteEvent(eventType, data); err != nil {
			l.Warn().Err(err).
				Str(log.FieldHandleID, h.ID).
				Str(log.FieldRoomID, roomID).
				Msg("write failed, detaching handle")
			r.Detach(h)
			continue
		}
		delivered++
	}
	return delivered
}

// Detach removes a handle. It is idempotent; when the last handle of a room
// is removed the room entry is pruned so the map tracks only rooms with live
// connections.
func (r *Registry) Detach(h *Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	set, ok := r.rooms[h.RoomID]
	if ok {
		if _, member := set[h]; member {
			delete(set, h)
			if len(set) == 0 {
				delete(r.rooms, h.RoomID)
			}
			ok = true
		} else {
			ok = false
		}
	}
	r.mu.Unlock()

	if ok {
		l := log.L()
		l.Debug().
			Str(log.FieldHandleID, h.ID).
			Str(log.FieldRoomID, h.RoomID).
			Msg("connection detached")
	}
}

// RoomCount returns the number of live connections for a room.
func (r *Registry) RoomCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Rooms returns the number of rooms with at least one live connection.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
