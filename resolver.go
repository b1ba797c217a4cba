package splitasset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/hashicorp/go-multierror"
	workerpool "github.com/linxGnu/gumble/worker-pool"
	cache "github.com/patrickmn/go-cache"
)

var defaultLogger = log.New(os.Stderr, "splitasset: ", log.LstdFlags)

const manifestCacheKey = "manifest"

// Resolver turns an asset name into a URL the consumer can fetch. If the
// split manifest records the asset as chunked, the chunks are fetched,
// reassembled in index order and registered with the blob store; otherwise,
// and on every failure path, the direct URL is returned unchanged. Resolve
// never reports an error to its caller.
//
// A Resolver is safe for concurrent use; concurrent resolutions share no
// mutable state beyond the blob store. Reconstructed buffers are never
// deduplicated: every call re-fetches and re-assembles.
type Resolver struct {
	root         string
	manifestName string
	client       *httpClient
	blobs        *BlobStore

	cache    *cache.Cache
	cacheTTL time.Duration

	workers *workerpool.Pool

	timeout time.Duration
	logger  *log.Logger
}

// NewResolver create new resolver for assets published under root. The blob
// store receives reassembled resources; client may be nil for
// http.DefaultClient.
func NewResolver(root string, blobs *BlobStore, client *http.Client, opts ...ResolverOption) (r *Resolver, err error) {
	base, err := parseURI(root)
	if err != nil {
		return nil, fmt.Errorf("parse root %s: %w", root, err)
	}
	if blobs == nil {
		blobs = NewBlobStore()
	}

	r = &Resolver{
		root:         base.String(),
		manifestName: DefaultManifestName,
		client:       newHTTPClient(client),
		blobs:        blobs,
		logger:       defaultLogger,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.cacheTTL > 0 {
		r.cache = cache.New(r.cacheTTL, r.cacheTTL*2)
	}

	return r, nil
}

// Blobs returns the blob store backing reconstructed resources.
func (r *Resolver) Blobs() *BlobStore {
	return r.blobs
}

// Close underlying workers.
func (r *Resolver) Close() (err error) {
	if r.workers != nil {
		r.workers.Stop()
	}
	return
}

// Resolve returns a usable URL for basePath+fileName. The returned URL is
// either a blob URL holding the reassembled bytes, or the direct URL when
// the asset was never split or any step of reconstruction fails.
func (r *Resolver) Resolve(ctx context.Context, basePath, fileName string) string {
	originalURL := basePath + fileName

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	manifest, err := r.manifest(ctx)
	if err != nil {
		r.logger.Printf("warn: manifest unavailable, serving %s directly: %v", fileName, err)
		return originalURL
	}

	chunks := manifest.ChunkCount(manifestKey(originalURL, r.root))
	if chunks == 0 {
		return originalURL
	}

	data, err := r.assemble(ctx, originalURL, chunks)
	if err != nil {
		r.logger.Printf("warn: reassembly of %s failed, serving directly: %v", fileName, err)
		return originalURL
	}

	return r.blobs.Put(fileName, data)
}

// manifest fetches the split manifest from its well-known location,
// consulting the optional cache first.
func (r *Resolver) manifest(ctx context.Context) (m Manifest, err error) {
	if r.cache != nil {
		if item, exist := r.cache.Get(manifestCacheKey); exist && item != nil {
			if cached, ok := item.(Manifest); ok {
				return cached, nil
			}
		}
	}

	body, err := r.client.getOK(ctx, joinURL(r.root, r.manifestName))
	if err != nil {
		return nil, err
	}

	if m, err = ParseManifest(body); err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(manifestCacheKey, m, r.cacheTTL)
	}

	return m, nil
}

// assemble fetches chunks 1..chunks of originalURL and concatenates them in
// index order. Completion order of the fetches themselves is irrelevant:
// each payload lands in its indexed slot before concatenation.
func (r *Resolver) assemble(ctx context.Context, originalURL string, chunks int) ([]byte, error) {
	if r.workers != nil {
		return r.assembleConcurrent(ctx, originalURL, chunks)
	}

	// chunk bodies stream straight into the assembly buffer
	var buf bytes.Buffer
	for n := 1; n <= chunks; n++ {
		err := r.client.download(ctx, ChunkName(originalURL, n), func(body io.Reader) error {
			_, e := io.Copy(&buf, body)
			return e
		})
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %d: %w", n, chunks, err)
		}
	}
	return buf.Bytes(), nil
}

func (r *Resolver) assembleConcurrent(ctx context.Context, originalURL string, chunks int) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	parts := make([][]byte, chunks)
	tasks := make([]*workerpool.Task, 0, chunks)
	for n := 1; n <= chunks; n++ {
		n := n

		task := workerpool.NewTask(ctx, func(ctx context.Context) (interface{}, error) {
			part, e := r.client.getOK(ctx, ChunkName(originalURL, n))
			if e != nil {
				cancel() // no point finishing the rest
				return nil, fmt.Errorf("chunk %d of %d: %w", n, chunks, e)
			}
			parts[n-1] = part
			return nil, nil
		})
		r.workers.Do(task)

		tasks = append(tasks, task)
	}

	var errs error
	for i := range tasks {
		if res := <-tasks[i].Result(); res.Err != nil {
			errs = multierror.Append(errs, res.Err)
		}
	}
	if errs != nil {
		return nil, errs
	}

	var buf bytes.Buffer
	for _, part := range parts {
		buf.Write(part)
	}
	return buf.Bytes(), nil
}

func createWorkerPool() *workerpool.Pool {
	return workerpool.NewPool(context.Background(), workerpool.Option{
		NumberWorker: runtime.NumCPU() << 1,
	})
}
