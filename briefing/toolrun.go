package briefing

import (
	"context"
	"sync"
	"time"

	"github.com/plantops/opsbrief/opsmodel"
)

// toolCall names one tool invocation to fan out.
type toolCall struct {
	name string
	args map[string]any
}

// callTool runs one tool under its own deadline, racing the tool's result
// against context cancellation. The tool goroutine is not itself
// interruptible beyond what it checks its own ctx for; deadline discipline
// is cooperative.
func (o *Orchestrator) callTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) opsmodel.ToolResult {
	t, ok := o.Registry.Get(name)
	if !ok {
		return opsmodel.ToolResult{Success: false, ErrorMessage: "tool " + name + " not registered"}
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ready := make(chan opsmodel.ToolResult, 1)
	go func() {
		ready <- t.Run(toolCtx, args)
	}()

	select {
	case r := <-ready:
		return r
	case <-toolCtx.Done():
		return opsmodel.ToolResult{Success: false, ErrorMessage: "tool " + name + " timed out"}
	}
}

// runMany runs every call concurrently under the same per-call timeout and
// returns each tool's result keyed by tool name.
func (o *Orchestrator) runMany(ctx context.Context, calls []toolCall, timeout time.Duration) map[string]opsmodel.ToolResult {
	results := make(map[string]opsmodel.ToolResult, len(calls))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range calls {
		wg.Add(1)
		go func(c toolCall) {
			defer wg.Done()
			r := o.callTool(ctx, c.name, c.args, timeout)
			mu.Lock()
			results[c.name] = r
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}
