// Package splitasset publishes large static assets past per-file hosting
// limits. A build-time Splitter divides oversized files into numbered
// ".partN" chunk files and records them in a JSON manifest; a runtime
// Resolver consumes the manifest, reassembles the chunks in index order and
// hands back a local blob URL, falling back to the direct URL whenever the
// asset was never split or reconstruction fails.
package splitasset
