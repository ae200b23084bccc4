// Package modules implements the validation module executors: voice call,
// SMS, network registration check and network performance.
//
// Every executor validates its parameters up front and returns a
// *domain.ValidationError before touching the device. Once execution
// starts, device-side failures never surface as Go errors; they are
// folded into the result's success flags and counters.
package modules

import (
	"context"
	"sync"

	"github.com/telprobe/telprobe/internal/domain"
)

// Executor runs one validation module against a device.
type Executor interface {
	// Name is the module type key used in flow definitions.
	Name() string
	// Run executes the module. A non-nil error means the run never
	// started (bad parameters); a completed-but-unsuccessful validation
	// is a nil error with Success=false in the result envelope.
	Run(ctx context.Context, deviceID string, params map[string]any) (domain.ModuleResult, error)
}

// Registry maps module names to their executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds an executor. Safe to call concurrently.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Name()] = e
}

// Get returns the executor for the given module name.
// Returns UnknownModuleError if not registered.
func (r *Registry) Get(name string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[name]
	if !ok {
		return nil, &domain.UnknownModuleError{Module: name}
	}
	return e, nil
}

// Names returns the registered module names, unordered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	return names
}
