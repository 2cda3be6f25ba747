package live

// IndexAssigner hands out chunk indices 0, 1, 2, ... synchronously at the
// moment a chunk is produced, before any asynchronous work is scheduled for
// it. Assigning after an async step would let overlapping completions number
// chunks out of production order, which would corrupt the sequence contract
// every downstream consumer relies on.
//
// Not safe for concurrent use; it is owned by the single goroutine that
// receives chunks from the encoder.
type IndexAssigner struct {
	next int64
}

// Next returns the next index. Called exactly once per produced chunk.
func (a *IndexAssigner) Next() int64 {
	n := a.next
	a.next++
	return n
}

// Reset rewinds the assigner to 0 for a new session.
func (a *IndexAssigner) Reset() {
	a.next = 0
}
