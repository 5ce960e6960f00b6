// File: internal/backend/backend.go
// The structured command backend: a registry of named operations, each with
// a typed parameter schema and a success/failure result. The dispatcher
// only depends on this contract; the backend's transport (COM bridge, IPC,
// scripting API) lives behind the registered handlers.
package backend

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// strictJSON rejects parameters that do not match the operation's schema.
var strictJSON = jsoniter.Config{DisallowUnknownFields: true}.Froze()

var (
	// ErrUnknownOperation means the backend has no operation by that name.
	ErrUnknownOperation = errors.New("unknown backend operation")
	// ErrInvalidParams means the supplied parameters do not satisfy the
	// operation's schema.
	ErrInvalidParams = errors.New("parameters do not match operation schema")
)

// Result is the outcome of one backend invocation.
type Result struct {
	Success bool
	// Data carries the raw JSON payload of a successful call.
	Data []byte
	// Message explains a rejection.
	Message string
}

// Handler executes one operation with schema-validated raw parameters.
type Handler func(ctx context.Context, params []byte) (Result, error)

// Operation declares a named backend operation. ParamProto, when non-nil, is
// a zero value of the parameter struct; incoming parameters are strictly
// decoded against it before the handler runs.
type Operation struct {
	Name       string
	ParamProto any
	Handler    Handler
}

// Registry holds the operations the structured backend supports.
type Registry struct {
	mu     sync.RWMutex
	ops    map[string]Operation
	logger *zap.Logger
}

// NewRegistry creates an empty operation registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		ops:    make(map[string]Operation),
		logger: logger.With(zap.String("component", "backend")),
	}
}

// Register adds an operation. Names are unique.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("operation name cannot be empty")
	}
	if op.Handler == nil {
		return fmt.Errorf("operation %q has no handler", op.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.Name]; exists {
		return fmt.Errorf("operation %q already registered", op.Name)
	}
	r.ops[op.Name] = op
	return nil
}

// Supports reports whether the backend knows the operation.
func (r *Registry) Supports(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ops[name]
	return ok
}

// Names returns all registered operation names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke validates the parameters against the operation's schema and runs
// its handler.
func (r *Registry) Invoke(ctx context.Context, name string, params []byte) (Result, error) {
	r.mu.RLock()
	op, ok := r.ops[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}

	if op.ParamProto != nil && len(params) > 0 {
		if err := validateParams(op.ParamProto, params); err != nil {
			return Result{}, fmt.Errorf("%w: %s: %v", ErrInvalidParams, name, err)
		}
	}

	r.logger.Debug("Invoking backend operation", zap.String("operation", name))
	return op.Handler(ctx, params)
}

// validateParams strictly decodes params into a fresh instance of the
// prototype's type.
func validateParams(proto any, params []byte) error {
	target := reflect.New(reflect.TypeOf(proto)).Interface()
	return strictJSON.Unmarshal(params, target)
}
