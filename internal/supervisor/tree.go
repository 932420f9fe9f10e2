// Package supervisor runs the server's long-lived services under a suture
// tree. Background workers and the HTTP API sit in separate child
// supervisors so a crashing worker is restarted without touching the API.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

type TreeConfig struct {
	// FailureThreshold is the number of failures before backing off.
	FailureThreshold float64
	// FailureDecay is the rate in seconds at which failures are forgotten.
	FailureDecay    float64
	FailureBackoff  time.Duration
	ShutdownTimeout time.Duration
}

// Tree is the root supervisor with a workers layer and an api layer.
type Tree struct {
	root    *suture.Supervisor
	workers *suture.Supervisor
	api     *suture.Supervisor
	config  TreeConfig
}

// NewTree builds the tree. Zero config values take suture's defaults.
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logger}
	spec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = handler.MustHook()

	root := suture.New("recipebox", rootSpec)
	workers := suture.New("workers", spec)
	api := suture.New("api", spec)
	root.Add(workers)
	root.Add(api)

	return &Tree{root: root, workers: workers, api: api, config: config}
}

// AddWorker adds a background service such as the import worker.
func (t *Tree) AddWorker(svc suture.Service) suture.ServiceToken {
	return t.workers.Add(svc)
}

// AddAPI adds a request-serving service.
func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is cancelled and every service has stopped.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// UnstoppedServiceReport lists services that outlived the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// Named gives a service a name for supervisor logs.
func Named(name string, svc suture.Service) suture.Service {
	return named{name: name, Service: svc}
}

type named struct {
	name string
	suture.Service
}

func (n named) String() string { return n.name }
