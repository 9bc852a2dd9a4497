// Package tooling defines the capability-tool contract every member of the
// tools package implements, and a Registry that validates arguments against
// a JSON Schema before a tool ever sees them.
package tooling

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/errs"
	"github.com/plantops/opsbrief/opsmodel"
)

// Tool is one capability: a named, schema-validated, citeable query over
// the operational store. Run must never panic and must never let an *errs.Error
// escape; failures are reported via ToolResult.Success=false.
// CitationsRequired tools may not return a successful result with an empty
// citation list; Registry.Run enforces this.
type Tool interface {
	Name() string
	Description() string
	ArgsSchema() *jsonschema.Schema
	CitationsRequired() bool
	Run(ctx context.Context, args map[string]any) opsmodel.ToolResult
}

// Registry is the lookup table of every registered Tool, keyed by name.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t to the registry. Registering a name twice replaces the
// previous tool and preserves its original position in List.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the tool registered under name, or false if none is.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Validate checks args against name's schema, returning a *opsmodel-free
// error describing the first validation failure. Callers invoke this before
// Run so a tool's Run body can assume args are well-formed.
func (r *Registry) Validate(name string, args map[string]any) error {
	t, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("tooling: unknown tool %q", name)
	}
	schema := t.ArgsSchema()
	if schema == nil {
		return nil
	}
	// Round-trip through JSON so Go-typed values (int, []string) validate the
	// same as wire-decoded arguments.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("tooling: %s: encode arguments: %w", name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("tooling: %s: decode arguments: %w", name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("tooling: %s: invalid arguments: %w", name, err)
	}
	return nil
}

// Run validates args against name's schema, executes the tool, and enforces
// the citation contract: a successful result from a citations-required tool
// with no citations becomes a failure rather than an unsourced answer.
func (r *Registry) Run(ctx context.Context, name string, args map[string]any) opsmodel.ToolResult {
	t, ok := r.Get(name)
	if !ok {
		return Failure(errs.Newf(errs.KindValidation, "unknown tool %q", name))
	}
	if err := r.Validate(name, args); err != nil {
		return Failure(errs.Wrap(errs.KindValidation, "invalid arguments", err))
	}
	result := t.Run(ctx, args)
	if result.Success && t.CitationsRequired() && len(result.Citations) == 0 {
		return Failure(errs.Newf(errs.KindQuery, "%s produced a result without citations", name))
	}
	return result
}

// MustCompileSchema compiles a JSON Schema literal (as a Go map, the form
// every tool in this module declares its schema in) and panics on failure,
// since a malformed built-in schema is a programming error caught at
// process start, not a runtime condition. The literal is round-tripped
// through encoding/json first so Go ints in the literal become the plain
// JSON numbers the compiler expects.
func MustCompileSchema(name string, schema map[string]any) *jsonschema.Schema {
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tooling: %s: %v", name, err))
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic(fmt.Sprintf("tooling: %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("tooling: %s: %v", name, err))
	}
	compiled, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("tooling: %s: %v", name, err))
	}
	return compiled
}
