package live

import "time"

// SessionID uniquely identifies a live broadcast session.
type SessionID string

// Session is the pipeline's view of one broadcast: identity, liveness, and
// the latest-published-chunk pointer viewers follow. It is owned by the
// broadcasting side while IsLive is true and becomes an immutable historical
// record once ended.
type Session struct {
	ID           SessionID
	Title        string
	Description  string
	StreamKey    string
	ThumbnailURL string
	OwnerID      string
	OwnerName    string

	IsLive    bool
	Viewers   int
	StartTime time.Time
	EndTime   *time.Time

	// RecordingLocator points at the full-session recording blob. Empty
	// until the session has ended, and possibly empty afterwards if the
	// recording publish failed (degraded state).
	RecordingLocator string

	// LatestChunkIndex starts at -1 ("none published yet") and only ever
	// increases. LatestChunkLocator tracks it.
	LatestChunkIndex   int64
	LatestChunkLocator string
	LastChunkTime      time.Time
}

// SessionPatch is a partial update to a session record. Nil pointer fields
// are left untouched.
type SessionPatch struct {
	IsLive             *bool
	EndTime            *time.Time
	RecordingLocator   *string
	LatestChunkIndex   *int64
	LatestChunkLocator *string

	// TouchLastChunk asks the store to refresh LastChunkTime with its own
	// clock, keeping timestamps monotonic per session.
	TouchLastChunk bool

	// AddViewers increments the viewer count by the given amount.
	AddViewers int
}

// Chunk is one fixed-interval slice of encoded media on the broadcaster
// side. Each chunk is owned by exactly one pipeline stage at a time
// (encoder, then queue, then uploader) and is discarded after publish.
type Chunk struct {
	SessionID SessionID
	Index     int64
	Payload   []byte

	// Locator is populated only after a successful publish.
	Locator string
}

// ChunkReference is the viewer-visible projection of a published chunk.
type ChunkReference struct {
	Index   int64
	Locator string
}

// Constraints describes what the broadcaster wants from a capture device.
type Constraints struct {
	Video bool
	Audio bool
}
