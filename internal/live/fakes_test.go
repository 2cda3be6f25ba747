package live

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type publishedBlob struct {
	path string
	data []byte
}

// fakePublisher records published blobs in completion order. Paths
// containing failSubstr fail.
type fakePublisher struct {
	mu           sync.Mutex
	blobs        []publishedBlob
	failSubstr   string
	perCallDelay time.Duration
}

func (p *fakePublisher) Publish(_ context.Context, path string, data []byte) (string, error) {
	if p.perCallDelay > 0 {
		time.Sleep(p.perCallDelay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSubstr != "" && strings.Contains(path, p.failSubstr) {
		return "", fmt.Errorf("publish %s: transient failure", path)
	}
	cp := append([]byte(nil), data...)
	p.blobs = append(p.blobs, publishedBlob{path: path, data: cp})
	return "loc://" + path, nil
}

func (p *fakePublisher) paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.blobs))
	for i, b := range p.blobs {
		out[i] = b.path
	}
	return out
}

func (p *fakePublisher) blob(path string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.blobs {
		if b.path == path {
			return b.data, true
		}
	}
	return nil, false
}

// fakeStore is an in-memory SessionStore with synchronous notification
// delivery and manual snapshot pushing for watcher tests.
type fakeStore struct {
	mu         sync.Mutex
	sessions   map[SessionID]Session
	patches    []SessionPatch
	subs       map[SessionID][]func(Session)
	unsubCount int
	nextID     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[SessionID]Session),
		subs:     make(map[SessionID][]func(Session)),
	}
}

func (f *fakeStore) CreateSession(_ context.Context, s Session) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = SessionID(fmt.Sprintf("s%d", f.nextID))
	s.StartTime = time.Now().UTC()
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeStore) UpdateSession(_ context.Context, id SessionID, p SessionPatch) error {
	f.mu.Lock()
	s, ok := f.sessions[id]
	if !ok {
		f.mu.Unlock()
		return ErrSessionNotFound
	}
	if p.IsLive != nil {
		s.IsLive = *p.IsLive
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
	}
	f.sessions[id] = s
	f.patches = append(f.patches, p)
	fns := append([]func(Session){}, f.subs[id]...)
	f.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, id SessionID) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeStore) Subscribe(id SessionID, onChange func(Session)) (func(), error) {
	f.mu.Lock()
	f.subs[id] = append(f.subs[id], onChange)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.unsubCount++
		f.mu.Unlock()
	}, nil
}

// push delivers an arbitrary snapshot to the session's subscribers,
// simulating the at-least-once unordered notification channel.
func (f *fakeStore) push(id SessionID, s Session) {
	f.mu.Lock()
	fns := append([]func(Session){}, f.subs[id]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (f *fakeStore) session(id SessionID) Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id]
}

func (f *fakeStore) chunkPatchIndices() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, p := range f.patches {
		if p.LatestChunkIndex != nil {
			out = append(out, *p.LatestChunkIndex)
		}
	}
	return out
}

func (f *fakeStore) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubCount
}

// fakeFetcher serves blobs by locator, optionally failing the first N
// fetches of a locator.
type fakeFetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	fails map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{data: make(map[string][]byte), fails: make(map[string]int)}
}

func (f *fakeFetcher) set(locator string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[locator] = data
}

func (f *fakeFetcher) failNext(locator string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[locator] = n
}

func (f *fakeFetcher) Fetch(_ context.Context, locator string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails[locator] > 0 {
		f.fails[locator]--
		return nil, fmt.Errorf("fetch %s: transient failure", locator)
	}
	d, ok := f.data[locator]
	if !ok {
		return nil, fmt.Errorf("fetch %s: not found", locator)
	}
	return append([]byte(nil), d...), nil
}

// fakePlayer records played bodies and signals each play on a channel.
type fakePlayer struct {
	mu     sync.Mutex
	bodies []string
	ch     chan string
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{ch: make(chan string, 64)}
}

func (p *fakePlayer) Play(_ context.Context, body []byte) error {
	s := string(body)
	p.mu.Lock()
	p.bodies = append(p.bodies, s)
	p.mu.Unlock()
	p.ch <- s
	return nil
}

func (p *fakePlayer) played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.bodies...)
}

// waitPlayed blocks until the player has rendered body or the timeout hits.
func (p *fakePlayer) waitPlayed(timeout time.Duration) (string, bool) {
	select {
	case s := <-p.ch:
		return s, true
	case <-time.After(timeout):
		return "", false
	}
}

// fakeDevice hands out a fixed stream or an acquisition error.
type fakeDevice struct {
	rc  io.ReadCloser
	err error
}

func (d *fakeDevice) Acquire(context.Context, Constraints) (io.ReadCloser, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.rc, nil
}
