package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"livecast/internal/platform/metrics"
)

// BroadcastState is the lifecycle state of a Broadcaster.
type BroadcastState int

const (
	BroadcastIdle BroadcastState = iota
	BroadcastLive
	BroadcastEnded
)

func (s BroadcastState) String() string {
	switch s {
	case BroadcastIdle:
		return "idle"
	case BroadcastLive:
		return "live"
	case BroadcastEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// StartOptions carries the session metadata supplied by the broadcaster.
type StartOptions struct {
	Title        string
	Description  string
	ThumbnailURL string
	OwnerID      string
	OwnerName    string
	Constraints  Constraints
}

// Broadcaster owns the lifecycle of one broadcast: it acquires the capture
// device, runs capture -> encode -> index-assign -> enqueue -> upload, and on
// stop assembles and publishes the final recording.
type Broadcaster struct {
	device CaptureDevice
	store  SessionStore
	blobs  BlobPublisher
	log    *slog.Logger
	met    *metrics.Metrics

	interval time.Duration

	state    BroadcastState
	session  Session
	encoder  *Encoder
	queue    *UploadQueue
	assigner IndexAssigner
	runDone  chan struct{}
}

// NewBroadcaster wires a broadcaster. If interval <= 0 the default chunk
// interval is used; met may be nil.
func NewBroadcaster(device CaptureDevice, store SessionStore, blobs BlobPublisher, interval time.Duration, log *slog.Logger, met *metrics.Metrics) *Broadcaster {
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	return &Broadcaster{
		device:   device,
		store:    store,
		blobs:    blobs,
		log:      log,
		met:      met,
		interval: interval,
	}
}

// State returns the current lifecycle state.
func (b *Broadcaster) State() BroadcastState {
	return b.state
}

// Session returns the session record created by Start.
func (b *Broadcaster) Session() Session {
	return b.session
}

// Start transitions idle -> live: acquires the capture device, creates the
// session record (isLive=true, latestChunkIndex=-1), and starts the chunk
// pipeline. Device acquisition failure is fatal and surfaced synchronously.
func (b *Broadcaster) Start(ctx context.Context, opts StartOptions) (Session, error) {
	if b.state != BroadcastIdle {
		return Session{}, ErrBroadcastActive
	}

	src, err := b.device.Acquire(ctx, opts.Constraints)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	sess, err := b.store.CreateSession(ctx, Session{
		Title:            opts.Title,
		Description:      opts.Description,
		ThumbnailURL:     opts.ThumbnailURL,
		OwnerID:          opts.OwnerID,
		OwnerName:        opts.OwnerName,
		IsLive:           true,
		LatestChunkIndex: -1,
	})
	if err != nil {
		src.Close()
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	b.session = sess
	b.assigner.Reset()
	b.encoder = NewEncoder(src, b.interval)
	b.queue = NewUploadQueue(ctx, b.blobs, b.store, b.log, b.met)
	b.runDone = make(chan struct{})
	b.state = BroadcastLive

	b.encoder.Start()
	go b.run()

	b.log.Info("broadcast started",
		slog.String("session_id", string(sess.ID)),
		slog.String("owner_id", sess.OwnerID),
		slog.Duration("chunk_interval", b.interval))
	return sess, nil
}

// run consumes encoded payloads in production order. The index is assigned
// here, synchronously on receipt, before the chunk touches any asynchronous
// upload path.
func (b *Broadcaster) run() {
	defer close(b.runDone)
	for payload := range b.encoder.Chunks() {
		idx := b.assigner.Next()
		if b.met != nil {
			b.met.IncChunksProduced()
		}
		err := b.queue.Enqueue(Chunk{
			SessionID: b.session.ID,
			Index:     idx,
			Payload:   payload,
		})
		if err != nil {
			b.log.Warn("chunk not enqueued",
				slog.Int64("index", idx),
				slog.String("error", err.Error()))
		}
	}
}

// Stop transitions live -> ended: stops the encoder (flushing trailing
// data), drains the upload queue, publishes the final recording, and marks
// the session ended. The in-flight upload, if any, is allowed to finish.
//
// If the recording publish fails the session is still ended, just without a
// recording locator; Stop returns ErrPublishRecordingFailed so the caller
// can surface the degraded state, but the session record stays consistent.
func (b *Broadcaster) Stop(ctx context.Context) error {
	if b.state != BroadcastLive {
		return ErrNotBroadcasting
	}
	b.state = BroadcastEnded

	b.encoder.Stop()
	<-b.runDone
	b.queue.Close()
	if err := b.queue.Drain(ctx); err != nil {
		b.log.Warn("upload queue drain interrupted", slog.String("error", err.Error()))
	}

	now := time.Now().UTC()
	isLive := false
	patch := SessionPatch{IsLive: &isLive, EndTime: &now}

	recording := b.encoder.Recording()
	var publishErr error
	if len(recording) == 0 {
		b.log.Info("no media recorded, ending session without recording",
			slog.String("session_id", string(b.session.ID)))
	} else {
		path := fmt.Sprintf("recordings/%s.webm", b.session.ID)
		locator, err := b.blobs.Publish(ctx, path, recording)
		if err != nil {
			b.log.Warn("recording publish failed, session ends degraded",
				slog.String("session_id", string(b.session.ID)),
				slog.String("error", err.Error()))
			publishErr = fmt.Errorf("%w: %v", ErrPublishRecordingFailed, err)
		} else {
			patch.RecordingLocator = &locator
		}
	}

	if err := b.store.UpdateSession(ctx, b.session.ID, patch); err != nil {
		return fmt.Errorf("end session %s: %w", b.session.ID, err)
	}

	if b.met != nil {
		b.met.IncSessionsEnded()
	}
	b.log.Info("broadcast ended",
		slog.String("session_id", string(b.session.ID)),
		slog.Bool("recording_available", patch.RecordingLocator != nil))
	return publishErr
}
