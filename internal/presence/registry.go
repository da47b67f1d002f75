// Package presence owns the mapping between connections, users and
// rooms. All membership state lives here; handlers and the relay only
// go through the exported operations, which keeps the room and
// session views consistent under concurrent access.
package presence

import (
	"sync"
	"time"
)

// Session records one connection's seat in a room. A connection has
// at most one session at a time.
type Session struct {
	UserName string
	RoomID   string
	JoinedAt time.Time
}

// Member is a snapshot entry returned by MembersOf.
type Member struct {
	ID       string
	UserName string
}

// Registry is the single in-memory authority over room membership.
// Operations are serialized by an internal mutex; each one is atomic
// and non-blocking.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[string]struct{}

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

// Join seats connID in roomID as userName. If the connection already
// has a session it is torn down first, so a connection is only ever a
// member of one room. Rooms come into existence on first member.
func (r *Registry) Join(connID, userName, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(connID)

	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[roomID] = room
	}
	room[connID] = struct{}{}

	r.sessions[connID] = &Session{
		UserName: userName,
		RoomID:   roomID,
		JoinedAt: r.now(),
	}
}

// Leave removes connID's session, if any. Returns the room the
// connection was in and whether a session existed. Safe to call on a
// connection with no session; calling it twice is a no-op the second
// time.
func (r *Registry) Leave(connID string) (roomID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connID)
}

func (r *Registry) leaveLocked(connID string) (string, bool) {
	session, ok := r.sessions[connID]
	if !ok {
		return "", false
	}

	if room, exists := r.rooms[session.RoomID]; exists {
		delete(room, connID)
		// A room with no members must not linger.
		if len(room) == 0 {
			delete(r.rooms, session.RoomID)
		}
	}
	delete(r.sessions, connID)
	return session.RoomID, true
}

// Session returns a copy of connID's session, if any.
func (r *Registry) Session(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *session, true
}

// MembersOf returns a snapshot of the members of roomID, skipping
// excluding if non-empty. The slice is a copy; later joins and leaves
// do not show through it. An unknown room yields an empty slice.
func (r *Registry) MembersOf(roomID, excluding string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[roomID]
	members := make([]Member, 0, len(room))
	for connID := range room {
		if connID == excluding {
			continue
		}
		session, ok := r.sessions[connID]
		if !ok {
			continue
		}
		members = append(members, Member{ID: connID, UserName: session.UserName})
	}
	return members
}

// Counts reports the number of active rooms and sessions, for the
// health endpoint.
func (r *Registry) Counts() (rooms, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.sessions)
}
