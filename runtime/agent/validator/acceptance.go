package validator

import (
	"strings"

	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/memory"
)

// TaskType is one of the keyword-inferred task categories §4.4 defines
// acceptance criteria for. Informational only — it never gates goal-state
// detection, which depends solely on the validator's verdict.
type TaskType string

const (
	TaskCodingProblem    TaskType = "coding_problem"
	TaskWebDevelopment   TaskType = "web_development"
	TaskResearchAnalysis TaskType = "research_analysis"
	TaskSystemSetup      TaskType = "system_setup"
	TaskDocumentation    TaskType = "documentation"
	TaskGeneral          TaskType = "general"
)

// taskTypeKeywords infers TaskType from the task string by keyword match,
// checked in this order (first match wins); unmatched tasks fall back to
// TaskGeneral.
var taskTypeKeywords = []struct {
	taskType TaskType
	keywords []string
}{
	{TaskCodingProblem, []string{"algorithm", "function", "bug", "code", "implement", "leetcode"}},
	{TaskWebDevelopment, []string{"website", "webpage", "html", "css", "web app", "frontend"}},
	{TaskResearchAnalysis, []string{"research", "analyze", "compare", "investigate", "survey"}},
	{TaskSystemSetup, []string{"install", "configure", "setup", "deploy", "provision"}},
	{TaskDocumentation, []string{"document", "readme", "explain", "write a guide", "write docs"}},
}

// InferTaskType classifies task by keyword match (§4.4).
func InferTaskType(task string) TaskType {
	lower := strings.ToLower(task)
	for _, entry := range taskTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.taskType
			}
		}
	}
	return TaskGeneral
}

// MeetsAcceptanceCriteria reports whether proof satisfies the
// task-type-specific, informational acceptance bar (§4.4). This is never
// authoritative for goal-state detection — only the validator verdict is —
// but callers may surface it for debugging/UI purposes.
func MeetsAcceptanceCriteria(taskType TaskType, proof memory.CompletionProof) bool {
	switch taskType {
	case TaskCodingProblem:
		return proof.HasImplementation || proof.HasSynthesis
	case TaskWebDevelopment:
		return proof.HasFileCreation && proof.HasImplementation
	case TaskResearchAnalysis:
		return proof.HasFileCreation && proof.HasSynthesis
	case TaskSystemSetup:
		return proof.HasImplementation
	case TaskDocumentation:
		return proof.HasFileCreation
	default: // TaskGeneral
		return proof.HasImplementation || (proof.HasFileCreation && proof.HasSynthesis)
	}
}
