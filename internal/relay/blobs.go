package relay

import "sync"

// BlobStore holds published media blobs keyed by path. Put returns the
// locator viewers use to fetch the blob back.
type BlobStore interface {
	Put(path string, data []byte) (locator string, err error)
	Get(path string) ([]byte, bool)
}

// InMemoryBlobStore is an in-memory BlobStore. Locators are the relative
// URL of the blob on the relay's HTTP surface; clients resolve them against
// the relay base URL.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewInMemoryBlobStore returns a new empty blob store.
func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string][]byte)}
}

// Put implements BlobStore.Put. Re-putting a path overwrites it.
func (b *InMemoryBlobStore) Put(path string, data []byte) (string, error) {
	cp := make([]byte, len(data))
	copy(cp, data)

	b.mu.Lock()
	b.blobs[path] = cp
	b.mu.Unlock()

	return "/blobs/" + path, nil
}

// Get implements BlobStore.Get.
func (b *InMemoryBlobStore) Get(path string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[path]
	return data, ok
}
