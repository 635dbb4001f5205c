// Package toolbridge connects the task processor to external capabilities.
// A bridge knows which tools exist (for building the capability prompt) and
// how to run one.
package toolbridge

import (
	"context"
	"fmt"
	"sync"
)

type Param struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

type Spec struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"parameters,omitempty"`
}

// Result is the outcome of one tool execution. Exactly one of Result and
// Error is meaningful.
type Result struct {
	Name   string `json:"name"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Bridge is the call contract the processor depends on. Execute failures are
// per-call: the processor folds them into the result list and keeps going.
type Bridge interface {
	Describe() []Spec
	Execute(ctx context.Context, name string, params map[string]any) (string, error)
}

// Func is a locally registered tool handler.
type Func func(ctx context.Context, params map[string]any) (string, error)

// Registry is an in-process Bridge for tools that live in this binary.
type Registry struct {
	mu    sync.RWMutex
	specs []Spec
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: map[string]Func{}}
}

func (r *Registry) Register(spec Spec, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[spec.Name]; !exists {
		r.specs = append(r.specs, spec)
	}
	r.funcs[spec.Name] = fn
}

func (r *Registry) Describe() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, len(r.specs))
	copy(out, r.specs)
	return out
}

func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (string, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("tool %q is not registered", name)
	}
	return fn(ctx, params)
}

var _ Bridge = (*Registry)(nil)
