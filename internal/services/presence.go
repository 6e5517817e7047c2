package services

import "sync"

// Session is the handle the registry keeps per connected user. The socket
// gateway's connection wrapper implements it; tests use a fake.
type Session interface {
	ID() string
	UserID() string
	Emit(event string, payload interface{})
	Close()
}

// SessionStore abstracts the presence backing store. The in-process
// PresenceRegistry below is the only implementation today; a multi-process
// deployment can swap in a shared store without touching call sites.
type SessionStore interface {
	// Register stores the session as the user's active one. A user gets one
	// entry; a newer connection replaces the old, and the superseded session
	// is returned so the caller can close it (last-connect-wins).
	Register(s Session) (replaced Session)
	// Unregister removes the session if it is still the user's current one.
	// A stale disconnect from a superseded session is a no-op.
	Unregister(sessionID string) (userID string, removed bool)
	SessionFor(userID string) (Session, bool)
	IsOnline(userID string) bool
	JoinRoom(estateID, userID string)
	LeaveRoom(estateID, userID string)
	RoomMembers(estateID string) []string
}

// PresenceRegistry is the process-local SessionStore: who is connected, and
// which estate rooms they are in. Lookups are best-effort snapshots; a
// disconnect can race an in-flight send and the fan-out path tolerates that.
type PresenceRegistry struct {
	mu     sync.RWMutex
	byUser map[string]Session         // userID -> active session
	owner  map[string]string          // sessionID -> userID
	rooms  map[string]map[string]bool // estateID -> set(userID)
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		byUser: make(map[string]Session),
		owner:  make(map[string]string),
		rooms:  make(map[string]map[string]bool),
	}
}

func (r *PresenceRegistry) Register(s Session) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := r.byUser[s.UserID()]
	if replaced != nil {
		delete(r.owner, replaced.ID())
	}
	r.byUser[s.UserID()] = s
	r.owner[s.ID()] = s.UserID()
	return replaced
}

func (r *PresenceRegistry) Unregister(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owner[sessionID]
	if !ok {
		return "", false
	}
	delete(r.owner, sessionID)
	delete(r.byUser, userID)
	for _, members := range r.rooms {
		delete(members, userID)
	}
	return userID, true
}

func (r *PresenceRegistry) SessionFor(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[userID]
	return s, ok
}

func (r *PresenceRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

func (r *PresenceRegistry) JoinRoom(estateID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[estateID]
	if !ok {
		members = make(map[string]bool)
		r.rooms[estateID] = members
	}
	members[userID] = true
}

func (r *PresenceRegistry) LeaveRoom(estateID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[estateID]; ok {
		delete(members, userID)
	}
}

func (r *PresenceRegistry) RoomMembers(estateID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[estateID]
	out := make([]string, 0, len(members))
	for userID := range members {
		out = append(out, userID)
	}
	return out
}
