package relay

import "time"

// Session is the persisted session record, the external representation
// shared between broadcaster and viewers. JSON tags define the HTTP API
// wire format.
type Session struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	StreamKey    string `json:"streamKey,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	OwnerID      string `json:"ownerId"`
	OwnerName    string `json:"ownerName"`

	IsLive    bool       `json:"isLive"`
	Viewers   int        `json:"viewers"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`

	RecordingLocator   string    `json:"recordingLocator,omitempty"`
	LatestChunkIndex   int64     `json:"latestChunkIndex"`
	LatestChunkLocator string    `json:"latestChunkLocator,omitempty"`
	LastChunkTime      time.Time `json:"lastChunkTime"`
}

// SessionPatch is a partial update to a session record. Nil pointer fields
// are left untouched.
type SessionPatch struct {
	IsLive             *bool      `json:"isLive,omitempty"`
	EndTime            *time.Time `json:"endTime,omitempty"`
	RecordingLocator   *string    `json:"recordingLocator,omitempty"`
	LatestChunkIndex   *int64     `json:"latestChunkIndex,omitempty"`
	LatestChunkLocator *string    `json:"latestChunkLocator,omitempty"`
	TouchLastChunk     bool       `json:"touchLastChunk,omitempty"`
	AddViewers         int        `json:"addViewers,omitempty"`
}
