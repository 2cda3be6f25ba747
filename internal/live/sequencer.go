package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"livecast/internal/platform/metrics"
)

// SequencerState is the playback lifecycle state.
type SequencerState int32

const (
	SeqIdle SequencerState = iota
	SeqBuffering
	SeqPlaying
	SeqSwitchingToRecording
	SeqEnded
)

func (s SequencerState) String() string {
	switch s {
	case SeqIdle:
		return "idle"
	case SeqBuffering:
		return "buffering"
	case SeqPlaying:
		return "playing"
	case SeqSwitchingToRecording:
		return "switchingToRecording"
	case SeqEnded:
		return "ended"
	default:
		return "unknown"
	}
}

const (
	// DefaultGapTimeout bounds how long the sequencer waits for a missing
	// chunk index before skipping it: twice the chunk interval. Live
	// content has no value in waiting forever for one missing slice, and
	// under the store's latest-pointer notifications a skipped index can
	// never be surfaced again anyway.
	DefaultGapTimeout = 2 * DefaultChunkInterval

	// DefaultPlayedWindow is how many played chunk bodies are retained
	// before the oldest is released.
	DefaultPlayedWindow = 5

	// DefaultFetchAttempts and DefaultFetchBackoff bound the per-chunk
	// fetch retry. After the budget is spent the chunk is skipped,
	// mirroring the broadcaster's drop-on-failure upload policy.
	DefaultFetchAttempts = 3
	DefaultFetchBackoff  = 500 * time.Millisecond
)

// SequencerOptions tunes playback policy. Zero values take the defaults.
type SequencerOptions struct {
	GapTimeout    time.Duration
	PlayedWindow  int
	FetchAttempts int
	FetchBackoff  time.Duration
}

func (o SequencerOptions) withDefaults() SequencerOptions {
	if o.GapTimeout <= 0 {
		o.GapTimeout = DefaultGapTimeout
	}
	if o.PlayedWindow <= 0 {
		o.PlayedWindow = DefaultPlayedWindow
	}
	if o.FetchAttempts <= 0 {
		o.FetchAttempts = DefaultFetchAttempts
	}
	if o.FetchBackoff <= 0 {
		o.FetchBackoff = DefaultFetchBackoff
	}
	return o
}

type endedEvent struct {
	recordingLocator string
}

// Sequencer turns chunk references into continuous playback. Bodies are
// fetched and rendered strictly in ascending index order no matter the
// arrival order of references; a reference that is not immediately next is
// buffered until every lower index has played or been skipped after the gap
// timeout. On the terminal event it discards the live buffer and switches to
// the final recording exactly once.
//
// All playback state is owned by the Run goroutine; OnReference and OnEnded
// only post events, so no lock is needed around the buffer or watermark.
type Sequencer struct {
	fetch  BlobFetcher
	player Player
	log    *slog.Logger
	met    *metrics.Metrics
	opts   SequencerOptions

	refs  chan ChunkReference
	ended chan endedEvent
	state atomic.Int32

	// Owned by Run.
	buffer    map[int64]ChunkReference
	watermark int64 // highest index requested or played
	next      int64 // next index to hand to the player
	played    [][]byte
}

// NewSequencer wires a sequencer for one viewer. met may be nil.
func NewSequencer(fetch BlobFetcher, player Player, opts SequencerOptions, log *slog.Logger, met *metrics.Metrics) *Sequencer {
	return &Sequencer{
		fetch:     fetch,
		player:    player,
		log:       log,
		met:       met,
		opts:      opts.withDefaults(),
		refs:      make(chan ChunkReference, 64),
		ended:     make(chan endedEvent, 1),
		buffer:    make(map[int64]ChunkReference),
		watermark: -1,
	}
}

// State reports the current playback state.
func (s *Sequencer) State() SequencerState {
	return SequencerState(s.state.Load())
}

// OnReference posts a newly observed chunk reference. Never blocks; if the
// sequencer is hopelessly behind, the oldest unprocessed reference wins
// nothing by waiting, so the new one is dropped with a warning.
func (s *Sequencer) OnReference(ref ChunkReference) {
	select {
	case s.refs <- ref:
	default:
		s.log.Warn("reference dropped, sequencer backlogged", slog.Int64("index", ref.Index))
	}
}

// OnEnded posts the terminal event. The locator may be empty when the
// session ended without a recording.
func (s *Sequencer) OnEnded(recordingLocator string) {
	select {
	case s.ended <- endedEvent{recordingLocator: recordingLocator}:
	default:
	}
}

// Run drives playback until the session ends or ctx is cancelled. It returns
// nil after recording playback completes, ErrNoRecordingAvailable when the
// session ended degraded with nothing to replay, or ctx.Err on cancellation.
// All held chunk bodies are released before returning.
func (s *Sequencer) Run(ctx context.Context) error {
	s.state.Store(int32(SeqBuffering))
	defer s.releaseAll()

	gap := time.NewTimer(s.opts.GapTimeout)
	if !gap.Stop() {
		<-gap.C
	}
	gapArmed := false

	for {
		s.advance(ctx, gap, &gapArmed)

		select {
		case ref := <-s.refs:
			s.accept(ref)
		case ev := <-s.ended:
			return s.switchToRecording(ctx, ev)
		case <-gap.C:
			gapArmed = false
			s.skipGap()
		case <-ctx.Done():
			s.state.Store(int32(SeqEnded))
			return ctx.Err()
		}
	}
}

// accept buffers a reference if it is still ahead of the watermark. Late,
// duplicate, and stale references are dropped.
func (s *Sequencer) accept(ref ChunkReference) {
	if ref.Index <= s.watermark {
		if s.met != nil {
			s.met.IncStaleNotifications()
		}
		s.log.Debug("stale reference dropped", slog.Int64("index", ref.Index))
		return
	}
	if _, dup := s.buffer[ref.Index]; dup {
		return
	}
	s.buffer[ref.Index] = ref
}

// advance plays every immediately-next buffered reference, then arms the gap
// timer if something later is waiting behind a hole.
func (s *Sequencer) advance(ctx context.Context, gap *time.Timer, gapArmed *bool) {
	// References below next can linger when a late arrival loses the race
	// against a gap skip; they will never play.
	for idx := range s.buffer {
		if idx < s.next {
			delete(s.buffer, idx)
		}
	}

	for {
		ref, ok := s.buffer[s.next]
		if !ok {
			break
		}
		delete(s.buffer, s.next)
		s.next++
		if *gapArmed {
			stopTimer(gap)
			*gapArmed = false
		}
		s.playChunk(ctx, ref)
	}

	if len(s.buffer) == 0 {
		s.state.Store(int32(SeqBuffering))
		if *gapArmed {
			stopTimer(gap)
			*gapArmed = false
		}
		return
	}
	if !*gapArmed {
		gap.Reset(s.opts.GapTimeout)
		*gapArmed = true
	}
}

// skipGap gives up on the missing indices below the lowest buffered
// reference after the bounded wait expired.
func (s *Sequencer) skipGap() {
	lowest := int64(-1)
	for idx := range s.buffer {
		if lowest < 0 || idx < lowest {
			lowest = idx
		}
	}
	if lowest < s.next {
		return
	}
	s.log.Info("skipping missing chunks after gap timeout",
		slog.Int64("from", s.next),
		slog.Int64("to", lowest-1))
	if s.met != nil {
		s.met.IncChunksSkipped()
	}
	s.next = lowest
}

// playChunk fetches and renders one chunk body. Fetch failures are retried
// within a small budget then the chunk is skipped; playback errors skip too.
// The played body is retained in a short trailing window, and the oldest
// retained body is released as the window slides.
func (s *Sequencer) playChunk(ctx context.Context, ref ChunkReference) {
	if ref.Index > s.watermark {
		s.watermark = ref.Index
	}

	body, err := s.fetchWithRetry(ctx, ref.Locator)
	if err != nil {
		s.log.Warn("chunk fetch failed, skipping",
			slog.Int64("index", ref.Index),
			slog.String("error", err.Error()))
		if s.met != nil {
			s.met.IncChunksSkipped()
		}
		return
	}

	s.state.Store(int32(SeqPlaying))
	if err := s.player.Play(ctx, body); err != nil {
		s.log.Warn("chunk playback error",
			slog.Int64("index", ref.Index),
			slog.String("error", err.Error()))
		return
	}
	if s.met != nil {
		s.met.IncChunksPlayed()
	}

	s.played = append(s.played, body)
	if len(s.played) > s.opts.PlayedWindow {
		s.played[0] = nil
		s.played = s.played[1:]
	}
}

// switchToRecording handles the terminal event: discard the live buffer,
// play the final recording exactly once, and end.
func (s *Sequencer) switchToRecording(ctx context.Context, ev endedEvent) error {
	s.state.Store(int32(SeqSwitchingToRecording))
	s.buffer = make(map[int64]ChunkReference)
	s.releaseAll()

	if ev.recordingLocator == "" {
		s.state.Store(int32(SeqEnded))
		s.log.Warn("session ended without a recording")
		return ErrNoRecordingAvailable
	}

	body, err := s.fetchWithRetry(ctx, ev.recordingLocator)
	if err != nil {
		s.state.Store(int32(SeqEnded))
		return fmt.Errorf("fetch recording: %w", err)
	}
	if err := s.player.Play(ctx, body); err != nil {
		s.state.Store(int32(SeqEnded))
		return fmt.Errorf("play recording: %w", err)
	}

	s.state.Store(int32(SeqEnded))
	s.log.Info("recording playback complete")
	return nil
}

func (s *Sequencer) fetchWithRetry(ctx context.Context, locator string) ([]byte, error) {
	backoff := s.opts.FetchBackoff
	var lastErr error
	for attempt := 0; attempt < s.opts.FetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
		body, err := s.fetch.Fetch(ctx, locator)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrFetchFailed, lastErr)
}

func (s *Sequencer) releaseAll() {
	for i := range s.played {
		s.played[i] = nil
	}
	s.played = s.played[:0]
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
