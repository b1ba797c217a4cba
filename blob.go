package splitasset

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
)

// DefaultBlobPrefix is the URL path prefix under which reconstructed
// resources are addressable.
const DefaultBlobPrefix = "/blob/"

// BlobStore holds reconstructed in-memory resources and serves them over
// HTTP, playing the role object URLs play in a browser. Every Put returns a
// unique URL; the caller owns the lifetime of the entry and releases it when
// the resource is no longer needed.
type BlobStore struct {
	prefix string

	mu    sync.Mutex
	seq   uint64
	blobs map[string][]byte
}

// NewBlobStore create new blob store serving under DefaultBlobPrefix.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		prefix: DefaultBlobPrefix,
		blobs:  make(map[string][]byte),
	}
}

// Put registers data under a fresh URL of the form
// "<prefix><seq>/<name>" and returns that URL. The name suffix is kept so
// consumers that sniff file extensions keep working.
func (s *BlobStore) Put(name string, data []byte) string {
	s.mu.Lock()
	s.seq++
	u := s.prefix + strconv.FormatUint(s.seq, 10) + "/" + path.Base(name)
	s.blobs[u] = data
	s.mu.Unlock()
	return u
}

// Get returns the bytes registered under u.
func (s *BlobStore) Get(u string) (data []byte, ok bool) {
	s.mu.Lock()
	data, ok = s.blobs[u]
	s.mu.Unlock()
	return
}

// Release drops the entry registered under u. URLs that never came from this
// store (direct fallback URLs in particular) are ignored.
func (s *BlobStore) Release(u string) {
	s.mu.Lock()
	delete(s.blobs, u)
	s.mu.Unlock()
}

// Len returns the number of live entries.
func (s *BlobStore) Len() int {
	s.mu.Lock()
	n := len(s.blobs)
	s.mu.Unlock()
	return n
}

// Close releases all entries.
func (s *BlobStore) Close() error {
	s.mu.Lock()
	s.blobs = make(map[string][]byte)
	s.mu.Unlock()
	return nil
}

// ServeHTTP serves registered blobs. Anything not registered is a 404.
func (s *BlobStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, s.prefix) {
		http.NotFound(w, r)
		return
	}

	data, ok := s.Get(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
