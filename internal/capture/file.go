package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"livecast/internal/live"
)

// DefaultByteRate paces file playback at roughly webcam bitrate.
const DefaultByteRate = 256 * 1024

// FileDevice replays a media file as if it were a live capture source,
// pacing reads at ByteRate bytes per second. Useful for demos and tests
// where no camera exists.
type FileDevice struct {
	Path     string
	ByteRate int
}

// Acquire implements live.CaptureDevice.
func (d *FileDevice) Acquire(ctx context.Context, _ live.Constraints) (io.ReadCloser, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Path, err)
	}
	rate := d.ByteRate
	if rate <= 0 {
		rate = DefaultByteRate
	}
	return &pacedReader{src: f, chunk: rate / 10, every: 100 * time.Millisecond}, nil
}

// pacedReader throttles reads so the file drains in near real time instead
// of all at once.
type pacedReader struct {
	src   io.ReadCloser
	chunk int
	every time.Duration
	last  time.Time
}

func (p *pacedReader) Read(b []byte) (int, error) {
	if since := time.Since(p.last); since < p.every {
		time.Sleep(p.every - since)
	}
	p.last = time.Now()

	if len(b) > p.chunk && p.chunk > 0 {
		b = b[:p.chunk]
	}
	return p.src.Read(b)
}

func (p *pacedReader) Close() error {
	return p.src.Close()
}
