package splitasset

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/hashicorp/go-multierror"
	workerpool "github.com/linxGnu/gumble/worker-pool"
	"github.com/oxtoacart/bpool"
)

// SplitFile describes one file that was split during a run.
type SplitFile struct {
	// Path is the root-relative, forward-slash path of the original file.
	Path string

	// Size is the original file size in bytes.
	Size int64

	// Chunks is the number of chunk files written.
	Chunks int
}

// SplitReport is the outcome of one Split run.
type SplitReport struct {
	// Manifest is the updated manifest, including entries from earlier runs.
	Manifest Manifest

	// Files lists the files split during this run, ordered by path.
	Files []SplitFile
}

// Splitter divides oversized files under a publish root into numbered chunk
// files so a size-capped host can serve them, and records the chunk counts
// in the split manifest.
type Splitter struct {
	chunkSize    int64
	manifestName string
	workers      *workerpool.Pool
	buffers      *bpool.SizedBufferPool
	logger       *log.Logger
}

// NewSplitter create new splitter with default chunk size (20 MiB) and
// manifest name, overridable via options.
func NewSplitter(opts ...SplitterOption) *Splitter {
	s := &Splitter{
		chunkSize:    DefaultChunkSize,
		manifestName: DefaultManifestName,
		logger:       defaultLogger,
	}

	for _, opt := range opts {
		opt(s)
	}

	nWorker := runtime.NumCPU()
	s.workers = workerpool.NewPool(context.Background(), workerpool.Option{
		NumberWorker: nWorker,
	})
	s.workers.Start()

	// one copy buffer per worker, each able to hold a full chunk
	s.buffers = bpool.NewSizedBufferPool(nWorker, int(s.chunkSize))

	return s
}

// Close underlying workers.
func (s *Splitter) Close() (err error) {
	if s.workers != nil {
		s.workers.Stop()
	}
	return
}

// Split walks rootDir and splits every regular file strictly larger than the
// chunk size into chunk files named "<path>.part<N>", N starting at 1. The
// original file is deleted once its chunks are on disk and the manifest
// entry for its root-relative path is recorded. The manifest file is
// rewritten only when at least one file was split.
//
// Chunk files written by an earlier run are never candidates again: they are
// at most one chunk large, and the originals they replaced are gone, so
// re-running over already-split output is a no-op.
func (s *Splitter) Split(rootDir string) (report *SplitReport, err error) {
	if !isDir(rootDir) {
		return nil, fmt.Errorf("split root %s is not a directory", rootDir)
	}

	manifestPath := filepath.Join(rootDir, s.manifestName)
	manifest, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	candidates, err := s.findOversized(rootDir, manifestPath)
	if err != nil {
		return nil, err
	}

	results := make([]SplitFile, len(candidates))
	tasks := make([]*workerpool.Task, 0, len(candidates))
	for i := range candidates {
		i := i
		fullPath := candidates[i]

		task := workerpool.NewTask(context.Background(), func(ctx context.Context) (interface{}, error) {
			sf, e := s.splitFile(rootDir, fullPath)
			if e == nil {
				results[i] = sf
			}
			return nil, e
		})
		s.workers.Do(task)

		tasks = append(tasks, task)
	}

	var errs error
	for i := range tasks {
		if r := <-tasks[i].Result(); r.Err != nil {
			errs = multierror.Append(errs, r.Err)
		}
	}
	if errs != nil {
		return nil, errs
	}

	report = &SplitReport{Manifest: manifest}
	for _, sf := range results {
		manifest[sf.Path] = sf.Chunks
		report.Files = append(report.Files, sf)
	}
	sort.Slice(report.Files, func(i, j int) bool {
		return report.Files[i].Path < report.Files[j].Path
	})

	if len(report.Files) > 0 {
		if err = manifest.WriteFile(manifestPath); err != nil {
			return nil, fmt.Errorf("write manifest: %w", err)
		}
		s.logger.Printf("split %d file(s) under %s", len(report.Files), rootDir)
	}

	return report, nil
}

func (s *Splitter) findOversized(rootDir, manifestPath string) (files []string, err error) {
	err = filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		if path == manifestPath {
			return nil
		}
		if info.Size() > s.chunkSize {
			files = append(files, path)
		}
		return nil
	})
	return
}

// splitFile writes the chunk files for one oversized file and removes the
// original. Chunks are copied through a pooled buffer sized to one chunk.
func (s *Splitter) splitFile(rootDir, fullPath string) (sf SplitFile, err error) {
	fh, err := os.Open(fullPath)
	if err != nil {
		return
	}

	fi, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return
	}

	size := fi.Size()
	chunks := chunkCountFor(size, s.chunkSize)

	buf := s.buffers.Get()
	defer s.buffers.Put(buf)

	remaining := size
	for n := 1; n <= chunks; n++ {
		buf.Reset()

		take := s.chunkSize
		if remaining < take {
			take = remaining
		}
		if _, err = io.CopyN(buf, fh, take); err != nil {
			_ = fh.Close()
			err = fmt.Errorf("read chunk %d of %s: %w", n, fullPath, err)
			return
		}
		remaining -= take

		out, e := os.Create(ChunkName(fullPath, n))
		if e == nil {
			_, e = buf.WriteTo(out)
			if closeErr := out.Close(); e == nil {
				e = closeErr
			}
		}
		if e != nil {
			_ = fh.Close()
			err = fmt.Errorf("write chunk %d of %s: %w", n, fullPath, e)
			return
		}
	}

	if err = fh.Close(); err != nil {
		return
	}
	if err = os.Remove(fullPath); err != nil {
		err = fmt.Errorf("remove original %s: %w", fullPath, err)
		return
	}

	relPath, err := filepath.Rel(rootDir, fullPath)
	if err != nil {
		return
	}

	sf = SplitFile{
		Path:   normalizeKey(relPath),
		Size:   size,
		Chunks: chunks,
	}
	return
}
