package validator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/memory"
	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/model"
)

// LLMAgent is the reference validator.Agent implementation (§6.3): it asks
// the same provider-agnostic model.Client the planner uses to judge whether
// the task is complete, and parses the five structured Verdict fields out
// of a keyed-section response. The core never reads Rationale for control
// flow — it exists only for human-facing summaries.
type LLMAgent struct {
	llm model.Client
}

// NewLLMAgent constructs a validator.Agent backed by llm.
func NewLLMAgent(llm model.Client) *LLMAgent {
	return &LLMAgent{llm: llm}
}

var verdictKeyPattern = regexp.MustCompile(`(?im)^\s*(COMPLETED|CONFIDENCE|ISSUES|SUGGESTED_NEXT_ACTIONS|EVIDENCE_NEEDED|RATIONALE)\s*:`)

// Validate implements validator.Agent.
func (a *LLMAgent) Validate(ctx context.Context, task string, history []memory.ExecutionPayload) (Verdict, error) {
	req := buildValidationRequest(task, history)
	resp, err := a.llm.Complete(ctx, req)
	if err != nil {
		return Verdict{}, fmt.Errorf("validator llm agent: complete: %w", err)
	}
	return parseVerdict(responseText(resp)), nil
}

func buildValidationRequest(task string, history []memory.ExecutionPayload) *model.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)
	b.WriteString("Recent execution history:\n")
	for _, h := range history {
		fmt.Fprintf(&b, "- step=%q tool=%q success=%v observation=%q\n", h.Step, h.Tool, h.Success, truncate(h.Observation, 200))
	}
	b.WriteString("\nJudge whether the task is complete. Respond with exactly these sections:\n")
	b.WriteString("COMPLETED: true|false\nCONFIDENCE: <0..1>\nISSUES: comma,separated,list (or none)\n")
	b.WriteString("SUGGESTED_NEXT_ACTIONS: comma,separated,list (or none)\nEVIDENCE_NEEDED: comma,separated,list (or none)\nRATIONALE: <one paragraph>\n")

	return &model.Request{
		Messages: []*model.Message{{
			Role:  model.ConversationRoleUser,
			Parts: []model.Part{model.TextPart{Text: b.String()}},
		}},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func responseText(resp *model.Response) string {
	var b strings.Builder
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			if tp, ok := part.(model.TextPart); ok {
				b.WriteString(tp.Text)
			}
		}
	}
	return b.String()
}

// parseVerdict extracts the five structured fields from the model's
// response. Missing or malformed fields default conservatively (not
// completed, zero confidence) so a parse failure never masquerades as
// task completion.
func parseVerdict(text string) Verdict {
	sections := extractVerdictSections(text)

	v := Verdict{Rationale: sections["RATIONALE"]}
	v.Completed = strings.EqualFold(strings.TrimSpace(sections["COMPLETED"]), "true")
	if conf, err := strconv.ParseFloat(strings.TrimSpace(sections["CONFIDENCE"]), 64); err == nil {
		v.Confidence = clamp01(conf)
	}
	v.Issues = splitList(sections["ISSUES"])
	v.SuggestedNextActions = splitList(sections["SUGGESTED_NEXT_ACTIONS"])
	v.EvidenceNeeded = splitList(sections["EVIDENCE_NEEDED"])
	return v
}

func extractVerdictSections(text string) map[string]string {
	matches := verdictKeyPattern.FindAllStringSubmatchIndex(text, -1)
	sections := make(map[string]string, len(matches))
	for i, m := range matches {
		key := strings.ToUpper(text[m[2]:m[3]])
		valueStart := m[1]
		valueEnd := len(text)
		if i+1 < len(matches) {
			valueEnd = matches[i+1][0]
		}
		sections[key] = strings.TrimSpace(text[valueStart:valueEnd])
	}
	return sections
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
