package allocation

import (
	"fmt"
	"sort"
	"strings"
)

// Registry resolves an Engine by its type name. It is immutable once built.
type Registry struct {
	engines     map[string]Engine
	defaultType string
}

func NewRegistry(defaultType string, engines ...Engine) (*Registry, error) {
	r := &Registry{
		engines:     make(map[string]Engine, len(engines)),
		defaultType: strings.ToUpper(defaultType),
	}
	for _, e := range engines {
		name := strings.ToUpper(e.Type())
		if _, exists := r.engines[name]; exists {
			return nil, fmt.Errorf("allocation engine %q registered twice", name)
		}
		r.engines[name] = e
	}
	if _, ok := r.engines[r.defaultType]; !ok {
		return nil, fmt.Errorf("default allocation engine %q not registered", defaultType)
	}
	return r, nil
}

// NewDefaultRegistry registers FIFO as the default and LIFO.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(TypeFIFO, NewFIFO(), NewLIFO())
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the engine registered under name, or the default engine when
// name is empty or unknown.
func (r *Registry) Get(name string) Engine {
	if e, ok := r.engines[strings.ToUpper(name)]; ok {
		return e
	}
	return r.Default()
}

func (r *Registry) Default() Engine {
	return r.engines[r.defaultType]
}

func (r *Registry) Has(name string) bool {
	_, ok := r.engines[strings.ToUpper(name)]
	return ok
}

func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.engines))
	for name := range r.engines {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
