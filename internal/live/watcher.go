package live

import (
	"log/slog"
	"sync"

	"livecast/internal/platform/metrics"
)

// Watcher bridges the session store's change notifications into a normalized
// stream of chunk references and a single terminal ended event for one
// session. Delivery from the store is at-least-once with no ordering
// guarantee; the watcher deduplicates, dropping any notification whose chunk
// index is not strictly greater than the last index it already surfaced.
type Watcher struct {
	store SessionStore
	log   *slog.Logger
	met   *metrics.Metrics

	mu        sync.Mutex
	lastIndex int64
	ended     bool

	unsubOnce sync.Once
	unsub     func()
}

// NewWatcher returns an unsubscribed watcher. met may be nil.
func NewWatcher(store SessionStore, log *slog.Logger, met *metrics.Metrics) *Watcher {
	return &Watcher{store: store, log: log, met: met, lastIndex: -1}
}

// Subscribe attaches to the session's change feed. onReference fires for
// every newly observed chunk reference, in arrival order (which need not be
// index order). onEnded fires exactly once, when a notification reports the
// session is no longer live; the recording locator may be empty if the
// recording publish failed. After the ended event the watcher unsubscribes
// itself.
func (w *Watcher) Subscribe(sessionID SessionID, onReference func(ChunkReference), onEnded func(recordingLocator string)) error {
	unsub, err := w.store.Subscribe(sessionID, func(s Session) {
		w.handle(s, onReference, onEnded)
	})
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.unsub = unsub
	ended := w.ended
	w.mu.Unlock()
	// The ended notification can race subscription setup; release the
	// channel resource if it already fired.
	if ended {
		w.Unsubscribe()
	}
	return nil
}

// Unsubscribe releases the underlying notification channel. Idempotent.
func (w *Watcher) Unsubscribe() {
	w.mu.Lock()
	unsub := w.unsub
	w.mu.Unlock()
	if unsub == nil {
		return
	}
	w.unsubOnce.Do(unsub)
}

func (w *Watcher) handle(s Session, onReference func(ChunkReference), onEnded func(recordingLocator string)) {
	w.mu.Lock()
	if w.ended {
		w.mu.Unlock()
		return
	}

	if !s.IsLive {
		w.ended = true
		w.mu.Unlock()
		w.log.Debug("session ended",
			slog.String("session_id", string(s.ID)),
			slog.Bool("recording_available", s.RecordingLocator != ""))
		onEnded(s.RecordingLocator)
		w.Unsubscribe()
		return
	}

	if s.LatestChunkIndex <= w.lastIndex || s.LatestChunkLocator == "" {
		w.mu.Unlock()
		// Expected under at-least-once delivery, not an error.
		if w.met != nil {
			w.met.IncStaleNotifications()
		}
		return
	}

	w.lastIndex = s.LatestChunkIndex
	w.mu.Unlock()

	onReference(ChunkReference{Index: s.LatestChunkIndex, Locator: s.LatestChunkLocator})
}
