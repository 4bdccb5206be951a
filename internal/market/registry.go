package market

import (
	"fmt"
	"sort"
)

// Registry liga durações (dias) a bindings de yield.
// Guarda só referências para frente (dias -> descritor); o adaptador é resolvido via Sources.
type Registry struct {
	bindings    map[uint32]Binding
	defaultDays uint32
	hasDefault  bool
}

func newRegistry() *Registry {
	return &Registry{bindings: make(map[uint32]Binding)}
}

func (r *Registry) clone() *Registry {
	out := &Registry{
		bindings:    make(map[uint32]Binding, len(r.bindings)),
		defaultDays: r.defaultDays,
		hasDefault:  r.hasDefault,
	}
	for k, v := range r.bindings {
		out.bindings[k] = v
	}
	return out
}

// checkRegister nunca sobrescreve um binding existente
func (r *Registry) checkRegister(days uint32) error {
	if days == 0 {
		return fmt.Errorf("%w: zero days", ErrInvalidTimeLock)
	}
	if _, ok := r.bindings[days]; ok {
		return fmt.Errorf("%w: %d days", ErrDuplicateBinding, days)
	}
	return nil
}

func (r *Registry) register(b Binding) error {
	if err := r.checkRegister(b.Days); err != nil {
		return err
	}
	r.bindings[b.Days] = b
	return nil
}

func (r *Registry) checkDefault(days uint32) error {
	if _, ok := r.bindings[days]; !ok {
		return fmt.Errorf("%w: %d days", ErrUnknownDuration, days)
	}
	return nil
}

func (r *Registry) setDefault(days uint32) error {
	if err := r.checkDefault(days); err != nil {
		return err
	}
	r.defaultDays = days
	r.hasDefault = true
	return nil
}

// Resolve devolve o binding exato ou, em modo bypass, o default
func (r *Registry) Resolve(days uint32) (Binding, error) {
	if b, ok := r.bindings[days]; ok {
		return b, nil
	}
	if r.hasDefault {
		return r.bindings[r.defaultDays], nil
	}
	return Binding{}, fmt.Errorf("%w: %d days", ErrNoBindingAvailable, days)
}

func (r *Registry) Get(days uint32) (Binding, bool) {
	b, ok := r.bindings[days]
	return b, ok
}

func (r *Registry) Default() (Binding, bool) {
	if !r.hasDefault {
		return Binding{}, false
	}
	return r.bindings[r.defaultDays], true
}

// All devolve os bindings ordenados por duração
func (r *Registry) All() []Binding {
	out := make([]Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Days < out[j].Days })
	return out
}
