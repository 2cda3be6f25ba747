package live

import "errors"

var (
	// ErrDeviceUnavailable is returned when the capture device cannot be
	// acquired. Fatal to starting a broadcast; never retried.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrPublishRecordingFailed is returned by Broadcaster.Stop when the
	// final recording could not be published. The session is still ended;
	// it just has no recording to replay (degraded state).
	ErrPublishRecordingFailed = errors.New("recording publish failed")

	// ErrFetchFailed is returned when a chunk body could not be fetched
	// within the bounded retry budget.
	ErrFetchFailed = errors.New("chunk fetch failed")

	// ErrNoRecordingAvailable is the sequencer's degraded terminal state:
	// the session ended without a recording locator.
	ErrNoRecordingAvailable = errors.New("no recording available")

	// ErrSessionNotFound is returned for operations on an unknown session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded is returned when mutating a session that has ended.
	ErrSessionEnded = errors.New("session has ended")

	// ErrQueueClosed is returned by UploadQueue.Enqueue after Close.
	ErrQueueClosed = errors.New("upload queue closed")

	// ErrBroadcastActive is returned by Broadcaster.Start when a broadcast
	// is already running; the capture device is exclusively owned.
	ErrBroadcastActive = errors.New("broadcast already active")

	// ErrNotBroadcasting is returned by Broadcaster.Stop when there is no
	// live broadcast to stop.
	ErrNotBroadcasting = errors.New("no active broadcast")
)
