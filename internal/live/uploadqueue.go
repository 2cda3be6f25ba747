package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"livecast/internal/platform/metrics"
)

// UploadQueue serializes chunk uploads: at most one upload is in flight at
// any time, and uploads complete in the same order chunks were enqueued,
// regardless of individual upload latency. Enqueue never blocks the caller;
// the capture pipeline must not be stalled by network latency.
//
// A failed upload is logged and the chunk is dropped, not retried. For live
// broadcast an old failed chunk is worthless once newer chunks exist, so a
// retry would add latency without value. This is a deliberate best-effort,
// loss-tolerant policy.
type UploadQueue struct {
	blobs BlobPublisher
	store SessionStore
	log   *slog.Logger
	met   *metrics.Metrics

	mu      sync.Mutex
	pending []Chunk
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewUploadQueue starts the single worker goroutine. ctx bounds all uploads;
// met may be nil to disable metric recording.
func NewUploadQueue(ctx context.Context, blobs BlobPublisher, store SessionStore, log *slog.Logger, met *metrics.Metrics) *UploadQueue {
	q := &UploadQueue{
		blobs: blobs,
		store: store,
		log:   log,
		met:   met,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go q.work(ctx)
	return q
}

// Enqueue appends a chunk to the tail and returns immediately.
func (q *UploadQueue) Enqueue(c Chunk) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending = append(q.pending, c)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops intake. The worker finishes the backlog and exits; use Drain
// to wait for it.
func (q *UploadQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Drain blocks until the worker has processed every enqueued chunk after
// Close, or until ctx is done.
func (q *UploadQueue) Drain(ctx context.Context) error {
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// work is the single consumer. Exactly one instance runs per queue, which is
// what guarantees upload-completion order equals enqueue order.
func (q *UploadQueue) work(ctx context.Context) {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-q.wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		c := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.upload(ctx, c)
	}
}

// upload publishes one chunk and advances the session's latest-chunk record.
// Failures drop the chunk and move on.
func (q *UploadQueue) upload(ctx context.Context, c Chunk) {
	path := fmt.Sprintf("live-chunks/%s/chunk_%d.webm", c.SessionID, c.Index)

	locator, err := q.blobs.Publish(ctx, path, c.Payload)
	if err != nil {
		q.log.Warn("chunk upload failed, dropping chunk",
			slog.String("session_id", string(c.SessionID)),
			slog.Int64("index", c.Index),
			slog.String("error", err.Error()))
		if q.met != nil {
			q.met.IncChunkUploadsFailed()
		}
		return
	}

	err = q.store.UpdateSession(ctx, c.SessionID, SessionPatch{
		LatestChunkIndex:   &c.Index,
		LatestChunkLocator: &locator,
		TouchLastChunk:     true,
	})
	if err != nil {
		q.log.Warn("latest chunk record update failed",
			slog.String("session_id", string(c.SessionID)),
			slog.Int64("index", c.Index),
			slog.String("error", err.Error()))
		if q.met != nil {
			q.met.IncChunkUploadsFailed()
		}
		return
	}

	q.log.Debug("chunk published",
		slog.String("session_id", string(c.SessionID)),
		slog.Int64("index", c.Index),
		slog.String("locator", locator))
	if q.met != nil {
		q.met.IncChunksUploaded()
	}
}
