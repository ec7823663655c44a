package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"insidersim/internal/event"
)

// Runner is a registered simulation model.
type Runner interface {
	Run(ctx context.Context) ([]event.Event, error)
}

// Factory builds a model from run parameters.
type Factory func(Config) Runner

// ErrUnknownModel is returned by New for a name with no registered factory.
var ErrUnknownModel = errors.New("unknown model")

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a model constructor available under name. It panics if
// name is already taken.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("sim: Register called twice for model " + name)
	}
	registry[name] = f
}

// New builds the named model.
func New(name string, cfg Config) (Runner, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return f(cfg), nil
}

// Models returns the registered model names, sorted.
func Models() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(ModelInsider, func(cfg Config) Runner { return NewModel(cfg) })
}
