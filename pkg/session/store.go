// Package session holds the mapping from channel senders to backend
// conversation handles.
//
// Entries live for the lifetime of the process: they are added on first
// contact and never expired, removed or persisted.
package session

import "sync"

// Store is the capability the relay needs from a session table.
type Store interface {
	// Get returns the handle stored for senderID.
	Get(senderID string) (string, bool)
	// InsertIfAbsent stores handle for senderID unless an entry already
	// exists. It returns the handle that is stored after the call and
	// whether this call inserted it.
	InsertIfAbsent(senderID, handle string) (string, bool)
	// Len reports the number of known senders.
	Len() int
}

// MemoryStore is a process-local Store safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]string),
	}
}

func (s *MemoryStore) Get(senderID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.sessions[senderID]
	return h, ok
}

func (s *MemoryStore) InsertIfAbsent(senderID, handle string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[senderID]; ok {
		return existing, false
	}
	s.sessions[senderID] = handle
	return handle, true
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Snapshot returns a copy of the table.
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.sessions))
	for k, v := range s.sessions {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
