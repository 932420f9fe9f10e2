package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server as a supervised service and shuts it down
// gracefully when its context is cancelled.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string { return "http-server" }
