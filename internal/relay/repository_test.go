package relay

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func int64p(v int64) *int64 { return &v }
func strp(v string) *string { return &v }
func boolp(v bool) *bool    { return &v }

func TestInMemoryRepository_CreateSession(t *testing.T) {
	repo := NewInMemoryRepository()

	s, err := repo.CreateSession(Session{Title: "demo", OwnerID: "u1", OwnerName: "Ada"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.ID == "" {
		t.Error("ID should be assigned")
	}
	if len(s.StreamKey) < 4 || s.StreamKey[:3] != "sk_" {
		t.Errorf("StreamKey should be generated, got %q", s.StreamKey)
	}
	if !s.IsLive {
		t.Error("new session should be live")
	}
	if s.LatestChunkIndex != -1 {
		t.Errorf("LatestChunkIndex: got %d want -1", s.LatestChunkIndex)
	}
	if s.Viewers != 0 || s.EndTime != nil || s.RecordingLocator != "" {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if s.StartTime.IsZero() {
		t.Error("StartTime should be set")
	}

	// Two creates never collide.
	s2, _ := repo.CreateSession(Session{Title: "other"})
	if s2.ID == s.ID {
		t.Error("session IDs must be unique")
	}
}

func TestInMemoryRepository_UpdateSession(t *testing.T) {
	repo := NewInMemoryRepository()
	s, _ := repo.CreateSession(Session{})

	t.Run("unknown_session", func(t *testing.T) {
		_, err := repo.UpdateSession("missing", SessionPatch{AddViewers: 1})
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("chunk_index_monotonic", func(t *testing.T) {
		got, err := repo.UpdateSession(s.ID, SessionPatch{
			LatestChunkIndex:   int64p(3),
			LatestChunkLocator: strp("/blobs/c3"),
			TouchLastChunk:     true,
		})
		if err != nil {
			t.Fatalf("UpdateSession: %v", err)
		}
		if got.LatestChunkIndex != 3 || got.LatestChunkLocator != "/blobs/c3" {
			t.Errorf("got index=%d locator=%s", got.LatestChunkIndex, got.LatestChunkLocator)
		}

		// A lower index is a redundant delivery; ignore it.
		got, err = repo.UpdateSession(s.ID, SessionPatch{
			LatestChunkIndex:   int64p(1),
			LatestChunkLocator: strp("/blobs/c1"),
		})
		if err != nil {
			t.Fatalf("UpdateSession: %v", err)
		}
		if got.LatestChunkIndex != 3 || got.LatestChunkLocator != "/blobs/c3" {
			t.Errorf("lower index must not regress: index=%d locator=%s", got.LatestChunkIndex, got.LatestChunkLocator)
		}
	})

	t.Run("viewers_clamped_at_zero", func(t *testing.T) {
		got, _ := repo.UpdateSession(s.ID, SessionPatch{AddViewers: 2})
		if got.Viewers != 2 {
			t.Errorf("Viewers: got %d want 2", got.Viewers)
		}
		got, _ = repo.UpdateSession(s.ID, SessionPatch{AddViewers: -5})
		if got.Viewers != 0 {
			t.Errorf("Viewers must not go negative, got %d", got.Viewers)
		}
	})
}

func TestInMemoryRepository_UpdateSession_after_end(t *testing.T) {
	repo := NewInMemoryRepository()
	s, _ := repo.CreateSession(Session{})
	if err := repo.EndSession(s.ID); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	_, err := repo.UpdateSession(s.ID, SessionPatch{LatestChunkIndex: int64p(9)})
	if !errors.Is(err, ErrSessionEnded) {
		t.Errorf("chunk patch after end: expected ErrSessionEnded, got %v", err)
	}

	// The ending patch itself is allowed, so the broadcaster can attach the
	// recording locator after marking the session over.
	_, err = repo.UpdateSession(s.ID, SessionPatch{IsLive: boolp(false), RecordingLocator: strp("/blobs/rec")})
	if err != nil {
		t.Errorf("ending patch after end should pass, got %v", err)
	}

	// Viewer counting keeps working on ended sessions.
	got, err := repo.UpdateSession(s.ID, SessionPatch{AddViewers: 1})
	if err != nil {
		t.Errorf("viewer patch after end should pass, got %v", err)
	}
	if got.Viewers != 1 {
		t.Errorf("Viewers: got %d want 1", got.Viewers)
	}
}

func TestInMemoryRepository_EndSession(t *testing.T) {
	repo := NewInMemoryRepository()
	s, _ := repo.CreateSession(Session{})

	if err := repo.EndSession(s.ID); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	got, _ := repo.GetSession(s.ID)
	if got.IsLive {
		t.Error("session should not be live after EndSession")
	}
	if got.EndTime == nil {
		t.Error("EndTime should be set")
	}

	end1 := got.EndTime
	if err := repo.EndSession(s.ID); err != nil {
		t.Errorf("second EndSession should be a no-op, got %v", err)
	}
	got, _ = repo.GetSession(s.ID)
	if got.EndTime != end1 {
		t.Error("repeated EndSession must not move EndTime")
	}

	if err := repo.EndSession("missing"); err != nil {
		t.Errorf("ending an unknown session should be a no-op, got %v", err)
	}
}

func TestInMemoryRepository_Subscribe(t *testing.T) {
	repo := NewInMemoryRepository()
	s, _ := repo.CreateSession(Session{})

	var mu sync.Mutex
	var snaps []Session
	latest := func() (Session, bool) {
		mu.Lock()
		defer mu.Unlock()
		if len(snaps) == 0 {
			return Session{}, false
		}
		return snaps[len(snaps)-1], true
	}

	unsubscribe, err := repo.Subscribe(s.ID, func(snap Session) {
		mu.Lock()
		snaps = append(snaps, snap)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	// Initial snapshot arrives without any update.
	waitFor(t, func() bool {
		snap, ok := latest()
		return ok && snap.ID == s.ID && snap.IsLive
	}, "initial snapshot not delivered")

	if _, err := repo.UpdateSession(s.ID, SessionPatch{
		LatestChunkIndex:   int64p(0),
		LatestChunkLocator: strp("/blobs/c0"),
	}); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	waitFor(t, func() bool {
		snap, ok := latest()
		return ok && snap.LatestChunkIndex == 0
	}, "update snapshot not delivered")

	// Intermediate snapshots may be conflated, but the final state always
	// lands.
	for i := int64(1); i <= 20; i++ {
		if _, err := repo.UpdateSession(s.ID, SessionPatch{LatestChunkIndex: int64p(i)}); err != nil {
			t.Fatalf("UpdateSession(%d): %v", i, err)
		}
	}
	waitFor(t, func() bool {
		snap, ok := latest()
		return ok && snap.LatestChunkIndex == 20
	}, "final snapshot not delivered")
}

func TestInMemoryRepository_Subscribe_unknown_session(t *testing.T) {
	repo := NewInMemoryRepository()
	_, err := repo.Subscribe("missing", func(Session) {})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestInMemoryRepository_unsubscribe_stops_delivery(t *testing.T) {
	repo := NewInMemoryRepository()
	s, _ := repo.CreateSession(Session{})

	var mu sync.Mutex
	count := 0
	unsubscribe, err := repo.Subscribe(s.ID, func(Session) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 1
	}, "initial snapshot not delivered")

	unsubscribe()
	unsubscribe() // safe to call twice

	mu.Lock()
	before := count
	mu.Unlock()
	if _, err := repo.UpdateSession(s.ID, SessionPatch{AddViewers: 1}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	after := count
	mu.Unlock()
	if after != before {
		t.Errorf("callback ran after unsubscribe: %d -> %d", before, after)
	}
}

func TestInMemoryRepository_ActiveSessionCount(t *testing.T) {
	repo := NewInMemoryRepository()
	if n := repo.ActiveSessionCount(); n != 0 {
		t.Errorf("empty repo: got %d want 0", n)
	}

	a, _ := repo.CreateSession(Session{})
	_, _ = repo.CreateSession(Session{})
	if n := repo.ActiveSessionCount(); n != 2 {
		t.Errorf("got %d want 2", n)
	}

	_ = repo.EndSession(a.ID)
	if n := repo.ActiveSessionCount(); n != 1 {
		t.Errorf("after end: got %d want 1", n)
	}
}
