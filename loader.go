package splitasset

import (
	"context"
	"errors"
	"sync"
)

// Engine is the external conversion capability. It only ever sees URLs; it
// never learns whether an asset was reassembled from chunks or fetched
// directly.
type Engine interface {
	// Init loads the engine from its runtime binary and data segment URLs.
	Init(ctx context.Context, wasmURL, dataURL string) error

	// Convert converts the document at sourceURL and returns the result.
	Convert(ctx context.Context, sourceURL string) ([]byte, error)
}

// State is the coarse lifecycle state of a Loader.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateInitializing
	StateReady
	StateConverting
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateConverting:
		return "converting"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

var (
	// ErrLoaderClosed is returned once a Loader has been closed.
	ErrLoaderClosed = errors.New("loader closed")

	// ErrNotReady is returned by Convert before a successful Init.
	ErrNotReady = errors.New("engine not initialized")
)

const (
	// DefaultWASMName is the engine runtime binary published under the root.
	DefaultWASMName = "soffice.wasm"

	// DefaultDataName is the engine data segment published under the root.
	DefaultDataName = "soffice.data.gz"
)

// Loader resolves the engine's large assets and initializes the engine with
// the resulting URLs, split-reconstructed or direct. It is an explicitly
// constructed, explicitly owned instance: there is no package-level engine
// state.
//
// Init is safe to call from any number of goroutines: the first caller does
// the work, the rest block on a one-shot completion signal and observe the
// same outcome.
type Loader struct {
	engine   Engine
	resolver *Resolver
	basePath string
	wasmName string
	dataName string

	mu       sync.Mutex
	state    State
	started  bool
	attempt  *initAttempt
	assetURL []string // blob URLs owned by this loader, released on Close
}

// initAttempt is one generation of initialization. err is written exactly
// once, before done is closed, and never again: a waiter that joined this
// attempt always observes this attempt's outcome, retries notwithstanding.
type initAttempt struct {
	done chan struct{}
	err  error
}

func (a *initAttempt) finish(err error) {
	a.err = err
	close(a.done)
}

// NewLoader create new loader over engine, resolving assets via resolver
// under basePath.
func NewLoader(engine Engine, resolver *Resolver, basePath string, opts ...LoaderOption) *Loader {
	l := &Loader{
		engine:   engine,
		resolver: resolver,
		basePath: basePath,
		wasmName: DefaultWASMName,
		dataName: DefaultDataName,
		attempt:  &initAttempt{done: make(chan struct{})},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// State returns the current lifecycle state.
func (l *Loader) State() State {
	l.mu.Lock()
	s := l.state
	l.mu.Unlock()
	return s
}

// Ready returns a channel closed once initialization finished, successfully
// or not. Check the Init result (or call Init again) after it fires.
func (l *Loader) Ready() <-chan struct{} {
	l.mu.Lock()
	ch := l.attempt.done
	l.mu.Unlock()
	return ch
}

// Init resolves the runtime binary and data segment concurrently, then
// initializes the engine with their URLs. Concurrent callers block until the
// first caller finishes and all observe its result. After a failed Init the
// loader returns to uninitialized and Init may be retried.
func (l *Loader) Init(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StateDestroyed {
		l.mu.Unlock()
		return ErrLoaderClosed
	}
	if l.state == StateReady || l.state == StateConverting {
		l.mu.Unlock()
		return nil
	}
	if l.started {
		attempt := l.attempt
		l.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.started = true
	l.state = StateLoading
	attempt := l.attempt
	l.mu.Unlock()

	// both assets resolve independently; Resolve never fails, it falls back
	var wasmURL, dataURL string
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		wasmURL = l.resolver.Resolve(ctx, l.basePath, l.wasmName)
	}()
	go func() {
		defer wg.Done()
		dataURL = l.resolver.Resolve(ctx, l.basePath, l.dataName)
	}()
	wg.Wait()

	l.mu.Lock()
	if l.state == StateDestroyed {
		// Close landed while the assets were resolving
		l.releaseLocked(wasmURL, dataURL)
		attempt.finish(ErrLoaderClosed)
		l.mu.Unlock()
		return ErrLoaderClosed
	}
	l.state = StateInitializing
	l.mu.Unlock()

	err := l.engine.Init(ctx, wasmURL, dataURL)

	l.mu.Lock()
	switch {
	case l.state == StateDestroyed:
		// Close landed while the engine was initializing; the loader stays
		// destroyed and the freshly minted handles are released
		l.releaseLocked(wasmURL, dataURL)
		err = ErrLoaderClosed
	case err == nil:
		l.state = StateReady
		l.assetURL = append(l.assetURL, wasmURL, dataURL)
	default:
		// wake current waiters, allow a fresh attempt afterwards
		l.state = StateUninitialized
		l.started = false
		l.attempt = &initAttempt{done: make(chan struct{})}
		l.releaseLocked(wasmURL, dataURL)
	}
	attempt.finish(err)
	l.mu.Unlock()

	return err
}

// Convert converts the document at sourceURL with the initialized engine.
func (l *Loader) Convert(ctx context.Context, sourceURL string) ([]byte, error) {
	l.mu.Lock()
	switch l.state {
	case StateDestroyed:
		l.mu.Unlock()
		return nil, ErrLoaderClosed
	case StateReady, StateConverting:
	default:
		l.mu.Unlock()
		return nil, ErrNotReady
	}
	l.state = StateConverting
	l.mu.Unlock()

	out, err := l.engine.Convert(ctx, sourceURL)

	l.mu.Lock()
	if l.state == StateConverting {
		l.state = StateReady
	}
	l.mu.Unlock()

	return out, err
}

// Close destroys the loader and releases the blob resources it owns.
// Further calls return ErrLoaderClosed from Init and Convert.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.state == StateDestroyed {
		l.mu.Unlock()
		return nil
	}
	l.state = StateDestroyed
	l.releaseLocked(l.assetURL...)
	l.assetURL = nil
	l.mu.Unlock()
	return nil
}

func (l *Loader) releaseLocked(urls ...string) {
	if l.resolver == nil {
		return
	}
	for _, u := range urls {
		l.resolver.Blobs().Release(u)
	}
}
