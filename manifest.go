package splitasset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	// DefaultManifestName is the well-known file name of the split manifest
	// under the publish root.
	DefaultManifestName = "split-manifest.json"

	// DefaultChunkSize is the default split threshold and chunk size: 20 MiB,
	// a safe margin below common static-hosting per-file ceilings.
	DefaultChunkSize int64 = 20 * 1024 * 1024

	// chunkSuffix separates the original file name from the 1-based chunk index.
	chunkSuffix = ".part"
)

// Manifest maps a root-relative, forward-slash file path to the number of
// chunks the file was split into. A path absent from the manifest was never
// split and should be fetched directly.
type Manifest map[string]int

// ChunkCount returns the chunk count recorded for key, or 0 if the key is
// absent or carries a non-positive value.
func (m Manifest) ChunkCount(key string) int {
	if n, ok := m[key]; ok && n > 0 {
		return n
	}
	return 0
}

// WriteFile persists the manifest as indented JSON at path.
func (m Manifest) WriteFile(path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err = encoder.Encode(m); err != nil {
		_ = file.Close()
		return
	}

	return file.Close()
}

// ParseManifest decodes manifest bytes. Gzip-compressed payloads are
// detected by magic number and decompressed transparently, so a manifest
// pushed through a precompressing CDN pipeline still loads.
func ParseManifest(data []byte) (m Manifest, err error) {
	if isGzipped(data) {
		if data, err = unzipData(data); err != nil {
			return nil, err
		}
	}

	m = make(Manifest)
	if err = json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return
}

// ReadManifest loads a manifest file from disk. A missing file yields an
// empty manifest: nothing was split yet.
func ReadManifest(path string) (Manifest, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(Manifest), nil
		}
		return nil, err
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// ChunkName returns the name of the n-th chunk of path. n is 1-based.
func ChunkName(path string, n int) string {
	return path + chunkSuffix + strconv.Itoa(n)
}

// chunkCountFor is ceil(size / chunkSize).
func chunkCountFor(size, chunkSize int64) int {
	return int((size + chunkSize - 1) / chunkSize)
}

// manifestKey derives the manifest lookup key for a resource URL by
// stripping the publish-root prefix and any leading slash. Keys stay
// root-relative so a base-URL change between split time and load time
// cannot poison the lookup.
func manifestKey(resourceURL, root string) string {
	key := strings.TrimPrefix(resourceURL, root)
	return strings.TrimPrefix(key, "/")
}

// normalizeKey converts a filesystem-relative path into manifest key form.
func normalizeKey(relPath string) string {
	return strings.TrimPrefix(filepath.ToSlash(relPath), "/")
}

func isGzipped(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func unzipData(input []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewBuffer(input))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ioutil.ReadAll(r)
}
