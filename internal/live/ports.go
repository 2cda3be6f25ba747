package live

import (
	"context"
	"io"
)

// BlobPublisher uploads an opaque payload under a path and returns a locator
// that viewers can later fetch. Eventually consistent; may fail transiently.
type BlobPublisher interface {
	Publish(ctx context.Context, path string, data []byte) (locator string, err error)
}

// BlobFetcher retrieves a previously published blob by its locator.
type BlobFetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// SessionStore is the document-store collaborator holding session records
// and delivering change notifications. Notifications are push-based,
// at-least-once, with no ordering guarantee.
type SessionStore interface {
	// CreateSession persists a new session record and returns it with
	// store-assigned fields (ID, StreamKey, StartTime) filled in.
	CreateSession(ctx context.Context, s Session) (Session, error)

	// UpdateSession applies a partial update to an existing session.
	UpdateSession(ctx context.Context, id SessionID, patch SessionPatch) error

	// GetSession returns the current session record.
	GetSession(ctx context.Context, id SessionID) (Session, error)

	// Subscribe registers onChange to be called with session snapshots
	// whenever the record changes (and once immediately with the current
	// state). The returned function cancels the subscription and is safe
	// to call more than once.
	Subscribe(id SessionID, onChange func(Session)) (unsubscribe func(), err error)
}

// CaptureDevice acquires the local media source. The returned stream yields
// encoded media bytes until closed. A device is exclusively owned by one
// broadcaster at a time.
type CaptureDevice interface {
	Acquire(ctx context.Context, c Constraints) (io.ReadCloser, error)
}

// Player renders one chunk body and returns when its playback ends.
type Player interface {
	Play(ctx context.Context, body []byte) error
}
