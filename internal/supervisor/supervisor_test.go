package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fake HTTP server ---

type fakeServer struct {
	listenErr error
	stop      chan struct{}
	shutdowns atomic.Int32
}

func newFakeServer() *fakeServer {
	return &fakeServer{stop: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(_ context.Context) error {
	f.shutdowns.Add(1)
	close(f.stop)
	return nil
}

// --- counting worker ---

type countingService struct {
	starts atomic.Int32
	fail   atomic.Bool
}

func (c *countingService) Serve(ctx context.Context) error {
	c.starts.Add(1)
	if c.fail.Load() {
		return errors.New("boom")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHTTPService_ShutsDownOnCancel(t *testing.T) {
	srv := newFakeServer()
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, int32(1), srv.shutdowns.Load())
}

func TestHTTPService_ListenError(t *testing.T) {
	srv := newFakeServer()
	srv.listenErr = errors.New("address in use")

	err := NewHTTPService(srv, time.Second).Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
}

func TestHTTPService_DefaultTimeout(t *testing.T) {
	svc := NewHTTPService(newFakeServer(), 0)
	assert.Equal(t, 30*time.Second, svc.shutdownTimeout)
	assert.Equal(t, "http-server", svc.String())
}

func TestNewTree_Defaults(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{})
	assert.Equal(t, 5.0, tree.config.FailureThreshold)
	assert.Equal(t, 30.0, tree.config.FailureDecay)
	assert.Equal(t, 15*time.Second, tree.config.FailureBackoff)
	assert.Equal(t, 10*time.Second, tree.config.ShutdownTimeout)
}

func TestTree_RunsAndStopsServices(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})
	worker := &countingService{}
	api := &countingService{}
	tree.AddWorker(Named("worker", worker))
	tree.AddAPI(api)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	require.Eventually(t, func() bool {
		return worker.starts.Load() == 1 && api.starts.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}
}

func TestTree_RestartsFailingWorker(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{FailureThreshold: 100, FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})
	worker := &countingService{}
	worker.fail.Store(true)
	tree.AddWorker(worker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tree.Serve(ctx)

	require.Eventually(t, func() bool { return worker.starts.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestNamed(t *testing.T) {
	svc := Named("import-worker", &countingService{})
	var _ suture.Service = svc
	assert.Equal(t, "import-worker", svc.(interface{ String() string }).String())
}
