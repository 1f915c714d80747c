package agent

import "fmt"

// Registry maps agent names to invokers. Registration order is
// preserved and doubles as the fixed priority order used by routing
// tie-breaks.
type Registry struct {
	invokers map[string]Invoker
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{invokers: make(map[string]Invoker)}
}

// Register adds an invoker. Registering the same name twice replaces
// the previous invoker but keeps its position in the priority order.
func (r *Registry) Register(inv Invoker) error {
	if inv == nil {
		return fmt.Errorf("invoker cannot be nil")
	}
	name := inv.Name()
	if name == "" {
		return fmt.Errorf("invoker name cannot be empty")
	}
	if _, exists := r.invokers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.invokers[name] = inv
	return nil
}

// Get returns the invoker for the given agent name.
func (r *Registry) Get(name string) (Invoker, bool) {
	inv, ok := r.invokers[name]
	return inv, ok
}

// Names returns the registered agent names in priority order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
