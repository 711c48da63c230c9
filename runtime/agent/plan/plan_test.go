package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/plan"
)

func TestNormalizeInputsAppliesAliases(t *testing.T) {
	out := plan.NormalizeInputs("write_file", map[string]any{"file_path": "/tmp/x.txt", "content": "hi"})
	assert.Equal(t, "/tmp/x.txt", out["filename"])
	assert.Equal(t, "hi", out["content"])
	_, hasAlias := out["file_path"]
	assert.False(t, hasAlias)
}

func TestNormalizeInputsPrefersExistingCanonical(t *testing.T) {
	out := plan.NormalizeInputs("write_file", map[string]any{"file_name": "alias.txt", "filename": "canonical.txt"})
	assert.Equal(t, "canonical.txt", out["filename"])
}

func TestNormalizeInputsNoAliasesForUnknownTool(t *testing.T) {
	out := plan.NormalizeInputs("search_web", map[string]any{"file_path": "ignored"})
	assert.Equal(t, "ignored", out["file_path"])
}

func TestMarkExecutedIncrementsAttempt(t *testing.T) {
	p := plan.New("write notes", "write_file", map[string]any{"filename": "a.md"}, "because", 1)
	assert.False(t, p.Metadata.Executed)
	p.MarkExecuted()
	assert.True(t, p.Metadata.Executed)
	assert.Equal(t, 1, p.Metadata.ExecutionAttempt)
}
