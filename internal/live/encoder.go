package live

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// DefaultChunkInterval is the wall-clock slice width for live chunks.
const DefaultChunkInterval = 3 * time.Second

const captureReadSize = 32 * 1024

// Encoder slices an acquired capture stream into chunk payloads at a fixed
// wall-clock interval and accumulates every payload for the full-session
// recording. Payloads are emitted in production order on Chunks(); no
// payload is ever emitted twice.
//
// The encoder owns the capture stream after Start and closes it on Stop.
type Encoder struct {
	src      io.ReadCloser
	interval time.Duration

	chunks chan []byte
	data   chan []byte
	stop   chan struct{}
	done   chan struct{}

	stopOnce sync.Once

	// recorded is appended only by the run goroutine and read only after
	// done is closed.
	recorded [][]byte
}

// NewEncoder wraps src. If interval <= 0, DefaultChunkInterval is used.
func NewEncoder(src io.ReadCloser, interval time.Duration) *Encoder {
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	return &Encoder{
		src:      src,
		interval: interval,
		chunks:   make(chan []byte, 16),
		data:     make(chan []byte, 16),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins periodic emission. Chunks() delivers payloads until Stop is
// called or the capture stream ends, then closes.
func (e *Encoder) Start() {
	go e.read()
	go e.run()
}

// Chunks is the ordered stream of encoded payloads.
func (e *Encoder) Chunks() <-chan []byte {
	return e.chunks
}

// Stop ends emission, flushes any buffered trailing data as a final chunk,
// and closes the chunk channel. Blocks until the flush is done. Idempotent.
func (e *Encoder) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
		e.src.Close()
	})
	<-e.done
}

// Recording returns the complete session media, the concatenation of every
// emitted payload. Valid only after Chunks() has closed.
func (e *Encoder) Recording() []byte {
	<-e.done
	return bytes.Join(e.recorded, nil)
}

// read pumps the capture stream into the data channel until EOF or error.
func (e *Encoder) read() {
	defer close(e.data)
	for {
		buf := make([]byte, captureReadSize)
		n, err := e.src.Read(buf)
		if n > 0 {
			select {
			case e.data <- buf[:n]:
			case <-e.stop:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (e *Encoder) run() {
	defer close(e.done)
	defer close(e.chunks)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	var pending bytes.Buffer
	for {
		select {
		case b, ok := <-e.data:
			if !ok {
				e.emit(&pending)
				return
			}
			pending.Write(b)
		case <-ticker.C:
			e.emit(&pending)
		case <-e.stop:
			// Drain whatever the reader produced before shutdown, then
			// flush the trailing data as the final chunk.
			for b := range e.data {
				pending.Write(b)
			}
			e.emit(&pending)
			return
		}
	}
}

// emit cuts the pending buffer into one chunk. Empty intervals produce
// nothing, matching a recorder that only fires when it has data.
func (e *Encoder) emit(pending *bytes.Buffer) {
	if pending.Len() == 0 {
		return
	}
	payload := make([]byte, pending.Len())
	copy(payload, pending.Bytes())
	pending.Reset()

	e.recorded = append(e.recorded, payload)
	e.chunks <- payload
}
