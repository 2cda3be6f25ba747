package relay

// Store is the persistence abstraction for session records. Implementations
// can be in-memory, file-based, or remote. The Repository uses Store for all
// reads and writes; callers of Repository do not need to know which Store is
// used.
type Store interface {
	GetSession(id string) (*Session, bool)
	SetSession(s *Session)
	ListSessionIDs() []string
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	sessions map[string]*Session
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
	}
}

// GetSession implements Store.GetSession.
func (s *InMemoryStore) GetSession(id string) (*Session, bool) {
	sess, ok := s.sessions[id]
	return sess, ok
}

// SetSession implements Store.SetSession.
func (s *InMemoryStore) SetSession(sess *Session) {
	s.sessions[sess.ID] = sess
}

// ListSessionIDs implements Store.ListSessionIDs.
func (s *InMemoryStore) ListSessionIDs() []string {
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
