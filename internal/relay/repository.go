package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Repository defines the concurrency-safe contract for accessing and
// mutating session records and for watching them for changes.
type Repository interface {
	// CreateSession persists a new session, assigning its ID, stream key,
	// start time, and initial latest-chunk index of -1.
	CreateSession(s Session) (Session, error)

	// GetSession returns the current record. ok is false if unknown.
	GetSession(id string) (Session, bool)

	// UpdateSession applies a partial update and notifies watchers with
	// the new snapshot. Mutating a session that has ended is rejected with
	// ErrSessionEnded, except for the ending patch itself and viewer-count
	// changes. The latest chunk index is kept monotonic: a patch carrying
	// a lower index than the current one is ignored, which makes redundant
	// deliveries harmless.
	UpdateSession(id string, p SessionPatch) (Session, error)

	// EndSession marks the session as not live. Idempotent; ending an
	// unknown session is a no-op.
	EndSession(id string) error

	// Subscribe registers fn for change snapshots of one session. fn is
	// called once immediately with the current state and then on every
	// update. Delivery is at-least-once per final state: intermediate
	// snapshots may be conflated to the latest one. The returned function
	// cancels the subscription and is safe to call more than once.
	Subscribe(id string, fn func(Session)) (func(), error)

	// ActiveSessionCount returns the number of live sessions. Used for
	// metrics.
	ActiveSessionCount() int
}

var (
	// ErrSessionNotFound is returned for operations on an unknown session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded is returned when attempting to mutate a session that
	// has already ended.
	ErrSessionEnded = errors.New("session has ended")
)

// watcher is one subscriber's conflating mailbox. cap-1 channel, latest
// snapshot wins; a dedicated goroutine delivers to the callback so a slow
// subscriber never blocks the repository.
type watcher struct {
	ch   chan Session
	stop chan struct{}
}

// InMemoryRepository is a concurrency-safe in-memory implementation of
// Repository. It uses a Store for persistence; by default an InMemoryStore.
type InMemoryRepository struct {
	mu       sync.RWMutex
	store    Store
	watchers map[string]map[*watcher]struct{}
}

// NewInMemoryRepository constructs a repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository using the given
// Store. Useful for testing or plugging in a different persistence backend.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{
		store:    store,
		watchers: make(map[string]map[*watcher]struct{}),
	}
}

// CreateSession implements Repository.CreateSession.
func (r *InMemoryRepository) CreateSession(s Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	s.ID = ulid.Make().String()
	s.StreamKey = "sk_" + ulid.Make().String()
	s.IsLive = true
	s.Viewers = 0
	s.StartTime = now
	s.EndTime = nil
	s.LatestChunkIndex = -1
	s.LatestChunkLocator = ""
	s.RecordingLocator = ""
	s.LastChunkTime = now

	stored := s
	r.store.SetSession(&stored)
	return s, nil
}

// GetSession implements Repository.GetSession.
func (r *InMemoryRepository) GetSession(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.store.GetSession(id)
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// UpdateSession implements Repository.UpdateSession.
func (r *InMemoryRepository) UpdateSession(id string, p SessionPatch) (Session, error) {
	r.mu.Lock()

	s, ok := r.store.GetSession(id)
	if !ok {
		r.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}

	endingPatch := p.IsLive != nil && !*p.IsLive
	viewerOnly := p.IsLive == nil && p.EndTime == nil && p.RecordingLocator == nil &&
		p.LatestChunkIndex == nil && p.LatestChunkLocator == nil && !p.TouchLastChunk
	if !s.IsLive && !endingPatch && !viewerOnly {
		r.mu.Unlock()
		return Session{}, ErrSessionEnded
	}

	if p.IsLive != nil {
		s.IsLive = *p.IsLive
		if !s.IsLive && s.EndTime == nil && p.EndTime == nil {
			now := time.Now().UTC()
			s.EndTime = &now
		}
	}
	if p.EndTime != nil {
		s.EndTime = p.EndTime
	}
	if p.RecordingLocator != nil {
		s.RecordingLocator = *p.RecordingLocator
	}
	if p.LatestChunkIndex != nil && *p.LatestChunkIndex > s.LatestChunkIndex {
		s.LatestChunkIndex = *p.LatestChunkIndex
		if p.LatestChunkLocator != nil {
			s.LatestChunkLocator = *p.LatestChunkLocator
		}
	}
	if p.TouchLastChunk {
		s.LastChunkTime = time.Now().UTC()
	}
	if p.AddViewers != 0 {
		s.Viewers += p.AddViewers
		if s.Viewers < 0 {
			s.Viewers = 0
		}
	}

	snap := *s
	r.notifyLocked(id, snap)
	r.mu.Unlock()
	return snap, nil
}

// EndSession implements Repository.EndSession.
func (r *InMemoryRepository) EndSession(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.store.GetSession(id)
	if !ok {
		// Treat ending a non-existent session as a no-op for idempotency.
		return nil
	}
	if !s.IsLive {
		return nil
	}

	s.IsLive = false
	now := time.Now().UTC()
	s.EndTime = &now

	r.notifyLocked(id, *s)
	return nil
}

// Subscribe implements Repository.Subscribe.
func (r *InMemoryRepository) Subscribe(id string, fn func(Session)) (func(), error) {
	r.mu.Lock()

	s, ok := r.store.GetSession(id)
	if !ok {
		r.mu.Unlock()
		return nil, ErrSessionNotFound
	}

	w := &watcher{
		ch:   make(chan Session, 1),
		stop: make(chan struct{}),
	}
	if r.watchers[id] == nil {
		r.watchers[id] = make(map[*watcher]struct{})
	}
	r.watchers[id][w] = struct{}{}
	w.ch <- *s
	r.mu.Unlock()

	go func() {
		for {
			select {
			case snap := <-w.ch:
				fn(snap)
			case <-w.stop:
				return
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.watchers[id], w)
			r.mu.Unlock()
			close(w.stop)
		})
	}
	return unsubscribe, nil
}

// ActiveSessionCount implements Repository.ActiveSessionCount.
func (r *InMemoryRepository) ActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListSessionIDs() {
		if s, ok := r.store.GetSession(id); ok && s.IsLive {
			n++
		}
	}
	return n
}

// notifyLocked posts the snapshot to every watcher of the session,
// conflating to latest-wins. Caller must hold r.mu in write mode.
func (r *InMemoryRepository) notifyLocked(id string, snap Session) {
	for w := range r.watchers[id] {
		select {
		case w.ch <- snap:
		default:
			// Mailbox full: replace the stale snapshot with this one.
			select {
			case <-w.ch:
			default:
			}
			select {
			case w.ch <- snap:
			default:
			}
		}
	}
}
