package strategy

import (
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/debug"
)

var registrations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatekeeper_strategy_registrations_total",
		Help: "Strategy registrations by outcome",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(registrations)
}

// Registry maps labels to strategies. The zero value is an empty registry
// ready for use. It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	// strategies is created on first write or full read and dropped by Clear.
	strategies map[Label]Strategy
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Add registers a pre-built strategy under label and returns it.
//
// candidate is checked at the registry boundary: it must declare
// Authenticate, otherwise a *MissingCapabilityError is returned, and it
// must embed Base, otherwise a *ContractViolationError is returned. A
// rejected candidate leaves the registry unchanged. An existing entry with
// the same label is replaced.
func (r *Registry) Add(label Label, candidate any) (Strategy, error) {
	s, err := conform(label, candidate)
	if err != nil {
		r.reject(label, err)
		return nil, err
	}
	r.store(label, s)
	return s, nil
}

// AddFunc registers an inline strategy built from fn and returns it. A nil
// fn yields a *MissingCapabilityError.
func (r *Registry) AddFunc(label Label, fn AuthenticateFunc, opts ...FuncOption) (Strategy, error) {
	if label == "" {
		r.reject(label, ErrEmptyLabel)
		return nil, ErrEmptyLabel
	}
	if fn == nil {
		err := &MissingCapabilityError{Label: label}
		r.reject(label, err)
		return nil, err
	}
	s := NewFunc(fn, opts...)
	r.store(label, s)
	return s, nil
}

// Register stores s under label. Conformance is checked by the compiler,
// so only an empty label or a nil s (including a typed nil pointer) is
// rejected.
func (r *Registry) Register(label Label, s Strategy) (Strategy, error) {
	if label == "" {
		r.reject(label, ErrEmptyLabel)
		return nil, ErrEmptyLabel
	}
	if isNil(s) {
		err := &MissingCapabilityError{Label: label}
		r.reject(label, err)
		return nil, err
	}
	r.store(label, s)
	return s, nil
}

// Lookup returns the strategy registered under label. ok is false if the
// label is unknown.
func (r *Registry) Lookup(label Label) (s Strategy, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok = r.strategies[label]
	return s, ok
}

// Clear removes every registered strategy.
func (r *Registry) Clear() {
	r.mu.Lock()
	n := len(r.strategies)
	r.strategies = nil
	r.mu.Unlock()

	debug.Log("registry", "cleared strategy registry", "removed", n)
}

// Strategies returns a copy of the label to strategy mapping.
func (r *Registry) Strategies() map[Label]Strategy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.all())
}

// Labels returns the registered labels in sorted order.
func (r *Registry) Labels() []Label {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.strategies))
}

// Len returns the number of registered strategies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}

// all returns the backing map, creating it if needed.
// Must be called with the write lock held.
func (r *Registry) all() map[Label]Strategy {
	if r.strategies == nil {
		r.strategies = make(map[Label]Strategy)
	}
	return r.strategies
}

func (r *Registry) store(label Label, s Strategy) {
	r.mu.Lock()
	strategies := r.all()
	_, replaced := strategies[label]
	strategies[label] = s
	r.mu.Unlock()

	if replaced {
		registrations.WithLabelValues("replaced").Inc()
		debug.Log("registry", "replaced strategy", "label", label, "type", fmt.Sprintf("%T", s))
		return
	}
	registrations.WithLabelValues("added").Inc()
	debug.Log("registry", "registered strategy", "label", label, "type", fmt.Sprintf("%T", s))
}

func (r *Registry) reject(label Label, err error) {
	registrations.WithLabelValues("rejected").Inc()
	slog.Warn("rejected strategy", "label", label, "error", err)
}

// conform checks candidate against the strategy contract in order:
// label, Authenticate capability, Base membership.
func conform(label Label, candidate any) (Strategy, error) {
	if label == "" {
		return nil, ErrEmptyLabel
	}
	if _, ok := candidate.(auth.Authenticator); !ok || isNil(candidate) {
		return nil, &MissingCapabilityError{Label: label}
	}
	s, ok := candidate.(Strategy)
	if !ok {
		return nil, &ContractViolationError{Label: label}
	}
	return s, nil
}

// isNil reports whether v is nil or a nil pointer, map, func or similar
// wrapped in an interface. Such values satisfy the interfaces but cannot
// authenticate.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Slice, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
