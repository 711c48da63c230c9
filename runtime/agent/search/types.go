// Package search implements the Search Engine (§4.5): frontier management,
// plan dispatch, scenario learning, validator coordination, and the
// iteration loop that drives a task to completion or exhausts its budget.
//
// Grounded on runtime/agent/engine/engine.go's logger/metrics/tracer
// injection style and context.Context-first method signatures; the
// teacher's engine is a durable Temporal-workflow abstraction (RegisterWorkflow,
// ExecuteActivity, WorkflowHandle) which this package does not carry forward —
// §5 specifies a single-threaded, non-durable, strictly sequential loop, so
// there is no workflow/activity boundary to preserve.
package search

import (
	"context"

	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/tools"
)

// ToolExecutionResult is the normalized shape of a tool-registry call
// (§6.1): success flag, result payload, error text, and metadata.
type ToolExecutionResult struct {
	Success  bool
	Result   any
	Error    string
	Metadata map[string]any
}

// ToolRegistry is the external tool-execution transport (§6.1), opaque and
// fallible: every call may fail.
type ToolRegistry interface {
	ListTools(ctx context.Context) ([]tools.ToolSpec, error)
	Execute(ctx context.Context, name string, params map[string]any) (ToolExecutionResult, error)
}

// Metrics is a lightweight snapshot of loop-level counters, independent of
// the telemetry.Metrics recorder (which emits these as gauges/counters to
// the observability backend).
type Metrics struct {
	TotalIterations  int
	TotalExecutions  int
	TotalValidations int
	TotalFailures    int
}
