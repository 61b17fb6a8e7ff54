// Package tools holds the helpers the assistant can call while composing
// an answer, and a registry that times and records each call.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrUnknownTool is returned for a call to an unregistered name.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArgs wraps argument validation failures.
	ErrInvalidArgs = errors.New("invalid tool arguments")
)

// Tool is one callable helper.
type Tool interface {
	Name() string
	Run(ctx context.Context, args map[string]any) (any, error)
}

// Call requests a tool by name.
type Call struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Invocation records the outcome of one call.
type Invocation struct {
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs"`
	Success    bool           `json:"success"`
}

// Registry dispatches calls to registered tools.
type Registry struct {
	tools map[string]Tool
	now   func() time.Time
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool), now: time.Now}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the call and records its outcome. A failure is reported in
// the Invocation rather than returned, so one broken tool does not fail
// the whole answer.
func (r *Registry) Invoke(ctx context.Context, call Call) Invocation {
	inv := Invocation{Name: call.Name, Arguments: call.Args}

	t, ok := r.tools[call.Name]
	if !ok {
		inv.Error = fmt.Errorf("%w: %s", ErrUnknownTool, call.Name).Error()
		return inv
	}

	start := r.now()
	result, err := t.Run(ctx, call.Args)
	inv.DurationMs = r.now().Sub(start).Milliseconds()

	if err != nil {
		inv.Error = err.Error()
		return inv
	}
	inv.Result = result
	inv.Success = true
	return inv
}
