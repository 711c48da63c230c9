// Package plan implements the Plan Generator & Scorer (§4.3): synthesizing
// candidate next steps from the task and tool registry, and assigning them
// utility scores subject to hint alignment, validator feedback, and the
// failure-awareness pre-filter.
package plan

import (
	"time"

	"github.com/google/uuid"

	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/scenario"
)

// ValidatorRecord carries the per-plan bookkeeping the Validator Integration
// component reads and writes during scoring (§4.3 adjustments 2, 3, 6).
type ValidatorRecord struct {
	HintAligned      bool
	IssueAddressed   bool
	ConfidenceImpact float64
}

// Metadata holds the plan's creation/execution bookkeeping (§3.1).
type Metadata struct {
	CreatedAt        time.Time
	ExecutionAttempt int
	Executed         bool
	Priority         string
	Tags             []string

	// ScoreMultiplier is set by the failure-awareness pre-filter (§4.3) and
	// applied to the LLM/fallback score before the additive adjustments.
	// Defaults to 1 (no adjustment).
	ScoreMultiplier float64
}

// Plan is a candidate next step (§3.1).
type Plan struct {
	ID        string
	Action    string
	Tool      string // empty means "no-op"
	Inputs    map[string]any
	Reasoning string
	Depth     int
	Score     float64
	Scenarios []scenario.Scenario
	Validator ValidatorRecord
	Metadata  Metadata
}

// New constructs a Plan with a fresh ID and sane metadata defaults.
func New(action, tool string, inputs map[string]any, reasoning string, depth int) Plan {
	return Plan{
		ID:        uuid.NewString(),
		Action:    action,
		Tool:      tool,
		Inputs:    inputs,
		Reasoning: reasoning,
		Depth:     depth,
		Metadata: Metadata{
			CreatedAt:       time.Now(),
			ScoreMultiplier: 1.0,
		},
	}
}

// MarkExecuted transitions the plan's executed flag false→true. Per §3.2
// invariant 3, this must only ever be called once per plan; callers
// (the Search Engine) are responsible for that guarantee.
func (p *Plan) MarkExecuted() {
	p.Metadata.Executed = true
	p.Metadata.ExecutionAttempt++
}

// toolAliases maps the per-tool input-field aliases the source normalizes
// (§4.3, §6.1): file_path/file_name are accepted spellings of filename on
// file-writing tools.
var toolAliases = map[string]map[string]string{
	"write_file": {
		"file_path": "filename",
		"file_name": "filename",
	},
}

// NormalizeInputs rewrites known aliases in inputs for the given tool,
// returning a new map (the original is left untouched).
func NormalizeInputs(tool string, inputs map[string]any) map[string]any {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	aliases, ok := toolAliases[tool]
	if !ok {
		return out
	}
	for alias, canonical := range aliases {
		if v, present := out[alias]; present {
			if _, hasCanonical := out[canonical]; !hasCanonical {
				out[canonical] = v
			}
			delete(out, alias)
		}
	}
	return out
}
