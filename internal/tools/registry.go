// Package tools implements the Tool Registry (C4): a frozen-after-
// startup map of tool name to handler plus the OpenAI-compatible
// schema for each, and the concrete tool implementations the DATCOM
// Pipeline and Reasoning Agent invoke. Grounded on the teacher's
// internal/flow.Register/flow.Get global-map registry idiom
// (internal/flow/flow.go), generalized here to an instance-scoped
// registry since this engine has no single-process-wide singleton
// requirement the teacher's bot had.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/datcomagent/internal/workflowstate"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// Registry holds every tool available to the Reasoning Agent and the
// DATCOM Pipeline. It is built once at startup via New and is safe for
// concurrent read access thereafter; Register is not safe to call
// concurrently with lookups.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]workflowstate.ToolSpec
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{specs: make(map[string]workflowstate.ToolSpec)}
}

// Register adds a tool to the registry. Calling Register twice with
// the same name overwrites the previous entry, mirroring the teacher's
// flow.Register semantics ("last registration wins") rather than
// panicking, since tool sets are assembled once during startup wiring.
func (r *Registry) Register(spec workflowstate.ToolSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		slog.Warn("tools.Registry.Register: overwriting existing tool", "name", spec.Name)
	}
	r.specs[spec.Name] = spec
}

// Get returns the handler for name, or false if no such tool is
// registered.
func (r *Registry) Get(name string) (workflowstate.ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Invoke looks up name and runs its handler against rawArgs, wrapping
// lookup failures as a ToolError so callers need not special-case
// "unknown tool" separately from handler failures.
func (r *Registry) Invoke(ctx context.Context, name, rawArgs string) (string, error) {
	spec, ok := r.Get(name)
	if !ok {
		return "", workflowstate.ToolError("tools.Registry.Invoke", fmt.Errorf("unknown tool: %s", name))
	}
	result, err := spec.Handler(ctx, rawArgs)
	if err != nil {
		return "", workflowstate.ToolError(fmt.Sprintf("tools.Registry.Invoke[%s]", name), err)
	}
	return result, nil
}

// Schemas returns the OpenAI-compatible tool schema for every
// registered tool, suitable for passing straight to
// chatclient.CompleteWithTools.
func (r *Registry) Schemas() []openai.ChatCompletionToolParam {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]openai.ChatCompletionToolParam, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  shared.FunctionParameters(spec.Parameters),
			},
		})
	}
	return out
}

// Names returns every registered tool name, for debug logging.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	return names
}
