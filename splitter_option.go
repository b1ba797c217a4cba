package splitasset

import "log"

type SplitterOption func(s *Splitter)

// WithChunkSize sets the split threshold and chunk size in bytes.
// Non-positive values are ignored.
func WithChunkSize(chunkSize int64) SplitterOption {
	return func(s *Splitter) {
		if chunkSize > 0 {
			s.chunkSize = chunkSize
		}
	}
}

// WithManifestName overrides the manifest file name under the publish root.
func WithManifestName(name string) SplitterOption {
	return func(s *Splitter) {
		if name != "" {
			s.manifestName = name
		}
	}
}

// WithSplitterLogger overrides the splitter's logger.
func WithSplitterLogger(logger *log.Logger) SplitterOption {
	return func(s *Splitter) {
		if logger != nil {
			s.logger = logger
		}
	}
}
