package activation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
)

// Func is a named squash function. Functions are assumed pure and stateless;
// genomes reference them by name when serialized and by value at runtime.
type Func struct {
	Name string
	Eval func(x float64) float64
}

var registry = struct {
	mu sync.RWMutex
	m  map[string]Func
}{
	m: make(map[string]Func),
}

func init() {
	MustRegister("identity", func(x float64) float64 { return x })
	MustRegister("logistic", func(x float64) float64 {
		return 1.0 / (1.0 + math.Exp(-x))
	})
	MustRegister("tanh", math.Tanh)
	MustRegister("relu", func(x float64) float64 {
		if x < 0 {
			return 0
		}
		return x
	})
	MustRegister("step", func(x float64) float64 {
		if x > 0 {
			return 1
		}
		return 0
	})
	MustRegister("sin", math.Sin)
	MustRegister("gaussian", func(x float64) float64 {
		return math.Exp(-x * x)
	})
	MustRegister("bipolar", func(x float64) float64 {
		return 2.0/(1.0+math.Exp(-x)) - 1.0
	})
}

// Register adds a squash function under name.
func Register(name string, eval func(float64) float64) error {
	if name == "" {
		return errors.New("activation name is required")
	}
	if eval == nil {
		return errors.New("activation function is required")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrActivationExists, name)
	}
	registry.m[name] = Func{Name: name, Eval: eval}
	return nil
}

func MustRegister(name string, eval func(float64) float64) {
	if err := Register(name, eval); err != nil {
		panic(err)
	}
}

// Resolve returns the registered squash function for name.
func Resolve(name string) (Func, error) {
	registry.mu.RLock()
	fn, ok := registry.m[name]
	registry.mu.RUnlock()
	if !ok {
		return Func{}, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
	}
	return fn, nil
}

// MustResolve panics when name is not registered. Only for built-in names.
func MustResolve(name string) Func {
	fn, err := Resolve(name)
	if err != nil {
		panic(err)
	}
	return fn
}

// Default is the squash assigned to fresh hidden and output nodes.
func Default() Func {
	return MustResolve("logistic")
}

// Names lists all registered squash names in stable order.
func Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.m))
	for name := range registry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MutationPool lists the squash names eligible for random activation
// mutation. Identity is excluded so activation mutation always changes the
// transfer behavior of the node.
func MutationPool() []string {
	pool := make([]string, 0)
	for _, name := range Names() {
		if name == "identity" {
			continue
		}
		pool = append(pool, name)
	}
	return pool
}
