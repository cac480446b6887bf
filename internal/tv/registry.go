package tv

import "sync"

// SessionRegistry tracks the live session for each managed device.
// Exactly one session per device identifier may exist at a time. The
// registry is an explicit object owned by the bootstrap, passed by
// reference to whoever needs it.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty session registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
	}
}

// Add registers a session. Returns ErrSessionExists if the device
// already has one.
func (r *SessionRegistry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.DeviceID()]; ok {
		return ErrSessionExists
	}
	r.sessions[s.DeviceID()] = s
	return nil
}

// Get returns the session for a device identifier.
func (r *SessionRegistry) Get(identifier string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[identifier]
	return s, ok
}

// Remove unregisters the session for a device without closing it.
func (r *SessionRegistry) Remove(identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, identifier)
}

// List returns all registered sessions.
func (r *SessionRegistry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Count returns the number of registered sessions.
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes every session and empties the registry.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
