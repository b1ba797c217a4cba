package splitasset

import (
	"log"
	"time"
)

type ResolverOption func(r *Resolver)

// WithManifestLocation overrides the well-known manifest name under the root.
func WithManifestLocation(name string) ResolverOption {
	return func(r *Resolver) {
		if name != "" {
			r.manifestName = name
		}
	}
}

// WithManifestCache caches the fetched manifest for ttl, sparing one round
// trip per Resolve. Only the manifest document is ever cached; reassembled
// bytes are not.
func WithManifestCache(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cacheTTL = ttl
	}
}

// WithChunkPrefetch fetches chunks concurrently on a worker pool instead of
// one at a time. Assembly stays in strict index order either way.
func WithChunkPrefetch() ResolverOption {
	return func(r *Resolver) {
		if r.workers == nil {
			r.workers = createWorkerPool()
			r.workers.Start()
		}
	}
}

// WithResolveTimeout bounds one whole Resolve call, manifest and chunk
// fetches included. On expiry the resolution counts as failed and falls back
// to the direct URL.
func WithResolveTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// WithResolverLogger overrides the resolver's fallback-warning logger.
func WithResolverLogger(logger *log.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}
