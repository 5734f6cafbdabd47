// Package operation is the static registry that maps operation names to
// typed handlers. Inputs are decoded strictly from JSON and validated before
// the handler runs.
package operation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/internal/pkg/validation"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const module = "OPERATION"

type Operation struct {
	Name        string
	Description string
	// Activity marks operations that count as activity on the active
	// session once they succeed.
	Activity bool

	newInput func() any
	handle   func(ctx context.Context, input any) (any, error)
}

// Define builds an operation whose input is decoded into In.
func Define[In any, Out any](name, description string, activity bool, fn func(ctx context.Context, in *In) (Out, error)) Operation {
	return Operation{
		Name:        name,
		Description: description,
		Activity:    activity,
		newInput:    func() any { return new(In) },
		handle: func(ctx context.Context, input any) (any, error) {
			return fn(ctx, input.(*In))
		},
	}
}

// Empty is the input of operations that take no arguments.
type Empty struct{}

type ActivityToucher interface {
	TouchActive(ctx context.Context) error
}

type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Activity    bool   `json:"activity"`
}

type Registry struct {
	ops     map[string]Operation
	toucher ActivityToucher
	logger  logger.ILogger
	tracer  trace.Tracer
}

func NewRegistry(log logger.ILogger, toucher ActivityToucher, ops ...Operation) *Registry {
	r := &Registry{
		ops:     make(map[string]Operation, len(ops)),
		toucher: toucher,
		logger:  log,
		tracer:  otel.Tracer("devmemory-be/operation"),
	}
	for _, op := range ops {
		if _, dup := r.ops[op.Name]; dup {
			panic(fmt.Sprintf("operation %q registered twice", op.Name))
		}
		r.ops[op.Name] = op
	}
	return r
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Describe() []Descriptor {
	out := make([]Descriptor, 0, len(r.ops))
	for _, name := range r.Names() {
		op := r.ops[name]
		out = append(out, Descriptor{Name: op.Name, Description: op.Description, Activity: op.Activity})
	}
	return out
}

func decodeStrict(raw []byte, into any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return apperr.Validation("malformed input: %v", err)
	}
	if dec.More() {
		return apperr.Validation("malformed input: trailing data")
	}
	return nil
}

// Dispatch runs the named operation against a raw JSON input.
func (r *Registry) Dispatch(ctx context.Context, name string, raw []byte) (any, error) {
	op, ok := r.ops[name]
	if !ok {
		return nil, apperr.NotFound("operation", name)
	}

	ctx, span := r.tracer.Start(ctx, "operation "+name, trace.WithAttributes(attribute.String("operation.name", name)))
	defer span.End()

	input := op.newInput()
	if err := decodeStrict(raw, input); err != nil {
		return nil, r.fail(span, name, err)
	}
	if err := validation.Struct(input); err != nil {
		return nil, r.fail(span, name, err)
	}

	out, err := op.handle(ctx, input)
	if err != nil {
		return nil, r.fail(span, name, err)
	}

	if op.Activity && r.toucher != nil {
		if err := r.toucher.TouchActive(ctx); err != nil {
			r.logger.Warn(module, "Failed to record activity", map[string]interface{}{
				"operation": name,
				"error":     err.Error(),
			})
		}
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (r *Registry) fail(span trace.Span, name string, err error) error {
	code := apperr.Code(err)
	span.SetAttributes(attribute.String("error.code", code))
	span.RecordError(err)
	span.SetStatus(codes.Error, code)

	details := map[string]interface{}{"operation": name, "code": code, "error": err.Error()}
	if code == "INTERNAL_ERROR" && !errors.Is(err, context.Canceled) {
		r.logger.Error(module, "Operation failed", details)
	} else {
		r.logger.Debug(module, "Operation rejected", details)
	}
	return err
}
