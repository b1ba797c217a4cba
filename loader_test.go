package splitasset

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu       sync.Mutex
	inits    int32
	wasmURL  string
	dataURL  string
	initErr  error
	convErr  error
	convOut  []byte
	lastSrc  string
	converts int32
}

func (e *fakeEngine) Init(ctx context.Context, wasmURL, dataURL string) error {
	atomic.AddInt32(&e.inits, 1)
	e.mu.Lock()
	e.wasmURL, e.dataURL = wasmURL, dataURL
	err := e.initErr
	e.mu.Unlock()
	return err
}

func (e *fakeEngine) Convert(ctx context.Context, sourceURL string) ([]byte, error) {
	atomic.AddInt32(&e.converts, 1)
	e.mu.Lock()
	e.lastSrc = sourceURL
	out, err := e.convOut, e.convErr
	e.mu.Unlock()
	return out, err
}

// gatedEngine parks inside Init until the test feeds gate, so lifecycle
// transitions can be interleaved with an in-flight initialization.
type gatedEngine struct {
	fakeEngine
	entered chan struct{}
	gate    chan error
}

func newGatedEngine() *gatedEngine {
	return &gatedEngine{
		entered: make(chan struct{}, 1),
		gate:    make(chan error),
	}
}

func (e *gatedEngine) Init(ctx context.Context, wasmURL, dataURL string) error {
	atomic.AddInt32(&e.inits, 1)
	e.mu.Lock()
	e.wasmURL, e.dataURL = wasmURL, dataURL
	e.mu.Unlock()
	e.entered <- struct{}{}
	return <-e.gate
}

func loaderFixture(t *testing.T, engine Engine) (*Loader, *Resolver) {
	t.Helper()

	srv, _ := splitServer(t, map[string][]byte{
		"soffice.wasm":    randomBytes(t, 3*testChunkSize+7),
		"soffice.data.gz": randomBytes(t, 45*1024),
	})

	r := newTestResolver(t, srv.URL)
	l := NewLoader(engine, r, srv.URL+"/")
	t.Cleanup(func() { _ = l.Close() })
	return l, r
}

func TestLoaderInitResolvesBothAssets(t *testing.T) {
	engine := &fakeEngine{convOut: []byte("pdf")}
	l, r := loaderFixture(t, engine)

	require.Equal(t, StateUninitialized, l.State())
	require.Nil(t, l.Init(context.Background()))
	require.Equal(t, StateReady, l.State())

	// both large assets came back as blob URLs holding the reassembled bytes
	require.True(t, strings.HasPrefix(engine.wasmURL, DefaultBlobPrefix))
	require.True(t, strings.HasPrefix(engine.dataURL, DefaultBlobPrefix))
	_, ok := r.Blobs().Get(engine.wasmURL)
	require.True(t, ok)
	_, ok = r.Blobs().Get(engine.dataURL)
	require.True(t, ok)

	out, err := l.Convert(context.Background(), "https://example.com/in.docx")
	require.Nil(t, err)
	require.EqualValues(t, []byte("pdf"), out)
	require.Equal(t, "https://example.com/in.docx", engine.lastSrc)
	require.Equal(t, StateReady, l.State())
}

func TestLoaderInitIsIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	l, _ := loaderFixture(t, engine)

	require.Nil(t, l.Init(context.Background()))
	require.Nil(t, l.Init(context.Background()))
	require.EqualValues(t, 1, atomic.LoadInt32(&engine.inits))
}

func TestLoaderConcurrentInit(t *testing.T) {
	engine := &fakeEngine{}
	l, _ := loaderFixture(t, engine)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.Nil(t, l.Init(context.Background()))
		}()
	}
	wg.Wait()

	// one initialization, everyone woken by the same signal
	require.EqualValues(t, 1, atomic.LoadInt32(&engine.inits))
	require.Equal(t, StateReady, l.State())

	select {
	case <-l.Ready():
	default:
		t.Fatal("ready channel not closed after init")
	}
}

func TestLoaderConvertBeforeInit(t *testing.T) {
	l, _ := loaderFixture(t, &fakeEngine{})

	_, err := l.Convert(context.Background(), "x")
	require.True(t, errors.Is(err, ErrNotReady))
}

func TestLoaderInitFailureIsRetryable(t *testing.T) {
	engine := &fakeEngine{initErr: errors.New("wasm trap")}
	l, r := loaderFixture(t, engine)

	require.NotNil(t, l.Init(context.Background()))
	require.Equal(t, StateUninitialized, l.State())
	// failed init does not leak blob handles
	require.Zero(t, r.Blobs().Len())

	engine.mu.Lock()
	engine.initErr = nil
	engine.mu.Unlock()

	require.Nil(t, l.Init(context.Background()))
	require.Equal(t, StateReady, l.State())
	require.EqualValues(t, 2, atomic.LoadInt32(&engine.inits))
}

func TestLoaderClose(t *testing.T) {
	engine := &fakeEngine{}
	l, r := loaderFixture(t, engine)

	require.Nil(t, l.Init(context.Background()))
	require.Equal(t, 2, r.Blobs().Len())

	require.Nil(t, l.Close())
	require.Equal(t, StateDestroyed, l.State())
	require.Zero(t, r.Blobs().Len())

	require.True(t, errors.Is(l.Init(context.Background()), ErrLoaderClosed))
	_, err := l.Convert(context.Background(), "x")
	require.True(t, errors.Is(err, ErrLoaderClosed))
}

func TestLoaderCloseDuringInit(t *testing.T) {
	engine := newGatedEngine()
	l, r := loaderFixture(t, engine)

	done := make(chan error, 1)
	go func() { done <- l.Init(context.Background()) }()

	// engine is mid-Init when Close lands
	<-engine.entered
	require.Nil(t, l.Close())
	engine.gate <- nil

	require.True(t, errors.Is(<-done, ErrLoaderClosed))
	require.Equal(t, StateDestroyed, l.State())

	// the handles minted for the aborted init are released, not leaked
	require.Zero(t, r.Blobs().Len())

	_, err := l.Convert(context.Background(), "x")
	require.True(t, errors.Is(err, ErrLoaderClosed))
	require.True(t, errors.Is(l.Init(context.Background()), ErrLoaderClosed))
}

func TestLoaderWaiterObservesJoinedAttempt(t *testing.T) {
	errTrap := errors.New("wasm trap")
	engine := newGatedEngine()
	l, _ := loaderFixture(t, engine)

	first := make(chan error, 1)
	go func() { first <- l.Init(context.Background()) }()
	<-engine.entered

	waiter := make(chan error, 1)
	go func() { waiter <- l.Init(context.Background()) }()
	time.Sleep(100 * time.Millisecond) // waiter blocks on the first attempt

	engine.gate <- errTrap
	require.True(t, errors.Is(<-first, errTrap))

	// retry succeeds on a fresh attempt
	retry := make(chan error, 1)
	go func() { retry <- l.Init(context.Background()) }()
	<-engine.entered
	engine.gate <- nil
	require.Nil(t, <-retry)
	require.Equal(t, StateReady, l.State())

	// the waiter still sees the outcome of the attempt it joined
	require.True(t, errors.Is(<-waiter, errTrap))
}

func TestLoaderCustomAssetNames(t *testing.T) {
	srv, _ := splitServer(t, map[string][]byte{
		"engine.wasm": randomBytes(t, 2*testChunkSize+3),
		"engine.data": randomBytes(t, 2*testChunkSize+4),
	})

	r := newTestResolver(t, srv.URL)
	engine := &fakeEngine{}
	l := NewLoader(engine, r, srv.URL+"/", WithWASMName("engine.wasm"), WithDataName("engine.data"))
	defer l.Close()

	require.Nil(t, l.Init(context.Background()))
	require.True(t, strings.HasSuffix(engine.wasmURL, "/engine.wasm"))
	require.True(t, strings.HasSuffix(engine.dataURL, "/engine.data"))
}
