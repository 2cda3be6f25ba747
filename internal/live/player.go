package live

import (
	"context"
	"io"
	"time"
)

// WriterPlayer renders chunk bodies by appending them to an io.Writer,
// reassembling the broadcast into one continuous byte stream (a file,
// stdout, a pipe into a real player). If Pace is set, Play holds the chunk
// for that long before returning, simulating real-time playback end.
type WriterPlayer struct {
	W    io.Writer
	Pace time.Duration
}

// Play implements Player.
func (p *WriterPlayer) Play(ctx context.Context, body []byte) error {
	if _, err := p.W.Write(body); err != nil {
		return err
	}
	if p.Pace > 0 {
		select {
		case <-time.After(p.Pace):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
