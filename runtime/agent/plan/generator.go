package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/memory"
	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/model"
	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/scenario"
	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/tools"
)

// maxMemoryDigestChars bounds the recent-memory digest handed to the
// generation prompt (§4.3).
const maxMemoryDigestChars = 5000

// depthZeroBlocked matches actions that may not appear at depth 0 (§4.3).
var depthZeroBlocked = regexp.MustCompile(`(?i)^(summarize|synthesize_answer|finalize|report)`)

// simpleQuestionPatterns recognizes bare arithmetic questions that need no
// memory digest or tool dispatch (§4.3 generation contract).
var simpleQuestionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^what is\s+-?\d+(\.\d+)?\s*[-+*/]\s*-?\d+(\.\d+)?\s*\??$`),
	regexp.MustCompile(`^-?\d+(\.\d+)?\s*[-+*/]\s*-?\d+(\.\d+)?$`),
	regexp.MustCompile(`(?i)^-?\d+(\.\d+)?\s*(plus|minus|times|divided by)\s*-?\d+(\.\d+)?$`),
}

// IsSimpleQuestion reports whether task matches one of the bare-arithmetic
// shapes the generator treats as needing no memory context.
func IsSimpleQuestion(task string) bool {
	trimmed := strings.TrimSpace(task)
	for _, re := range simpleQuestionPatterns {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

var proposalKeyPattern = regexp.MustCompile(`(?im)^\s*(ACTION|TOOL|INPUTS|REASONING|SCENARIOS)\s*:`)

// Generator synthesizes candidate plans via the LLM collaborator (§6.2),
// grounded on the teacher's planner.go prompt/parse shape but targeting the
// PROPOSAL/ACTION/TOOL/INPUTS/REASONING/SCENARIOS block format of §4.3.
type Generator struct {
	llm       model.Client
	toolSpecs map[string]tools.ToolSpec
	predictor *scenario.Predictor
}

// NewGenerator constructs a Generator over the given LLM client, registered
// tool list (§6.1), and scenario predictor (§4.2) used to populate each
// plan's predicted scenarios.
func NewGenerator(llm model.Client, toolList []tools.ToolSpec, predictor *scenario.Predictor) *Generator {
	specs := make(map[string]tools.ToolSpec, len(toolList))
	for _, t := range toolList {
		specs[t.Name] = t
	}
	return &Generator{llm: llm, toolSpecs: specs, predictor: predictor}
}

// Generate produces up to k candidate plans at the given depth. memoryDigest
// is the caller-supplied recent-memory context (empty for simple questions);
// Generate truncates it to maxMemoryDigestChars bytes. Known-bad action/tool
// signatures are not an input here: ApplyFailureAwareness handles them after
// generation.
func (g *Generator) Generate(ctx context.Context, task string, depth, k int, memoryDigest string) ([]Plan, error) {
	if len(memoryDigest) > maxMemoryDigestChars {
		memoryDigest = memoryDigest[:maxMemoryDigestChars]
	}

	req := g.buildProposalRequest(task, depth, k, memoryDigest)
	resp, err := g.llm.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("plan generation: llm call failed: %w", err)
	}

	text := responseText(resp)
	plans := g.parseProposals(text, depth)

	if len(plans) == 0 {
		fallback := New("gather_info", "", map[string]any{"task": task}, "no valid proposals survived parsing", depth)
		fallback.Metadata.Tags = append(fallback.Metadata.Tags, "fallback")
		plans = []Plan{fallback}
	}

	for i := range plans {
		if g.predictor != nil && plans[i].Tool != "" {
			pred := g.predictor.Predict(plans[i].Tool, plans[i].Inputs, nil)
			plans[i].Scenarios = pred.Scenarios
		}
	}
	return plans, nil
}

func (g *Generator) buildProposalRequest(task string, depth, k int, memoryDigest string) *model.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task)
	fmt.Fprintf(&b, "Depth: %d\n", depth)
	if memoryDigest != "" {
		fmt.Fprintf(&b, "Recent memory:\n%s\n", memoryDigest)
	}
	b.WriteString("Registered tools:\n")
	for name, spec := range g.toolSpecs {
		fmt.Fprintf(&b, "- %s: %s\n", name, spec.Description)
	}
	fmt.Fprintf(&b, "\nPropose exactly %d candidate next steps. For each, emit a block:\n", k)
	b.WriteString("PROPOSAL:\nACTION: <label>\nTOOL: <tool name or none>\nINPUTS: <json object>\nREASONING: <why>\nSCENARIOS: <comma separated outcome kinds>\n")

	return &model.Request{
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: b.String()}}},
		},
	}
}

func responseText(resp *model.Response) string {
	var b strings.Builder
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			if tp, ok := part.(model.TextPart); ok {
				b.WriteString(tp.Text)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func (g *Generator) parseProposals(text string, depth int) []Plan {
	blocks := strings.Split(text, "PROPOSAL:")
	var plans []Plan
	for _, block := range blocks[1:] {
		sections := extractSections(block)
		action := strings.TrimSpace(sections["ACTION"])
		tool := normalizeToolName(strings.TrimSpace(sections["TOOL"]))
		if action == "" || tool == "" {
			continue
		}
		if depth == 0 && depthZeroBlocked.MatchString(action) {
			continue
		}

		inputs, err := parseInputsJSON(sections["INPUTS"])
		if err != nil {
			continue
		}
		inputs = NormalizeInputs(tool, inputs)
		if !g.requiredInputsPresent(tool, inputs) {
			continue
		}

		reasoning := strings.TrimSpace(sections["REASONING"])
		p := New(action, tool, inputs, reasoning, depth)
		plans = append(plans, p)
	}
	return plans
}

// normalizeToolName treats "none"/empty TOOL values as no-op plans.
func normalizeToolName(raw string) string {
	lower := strings.ToLower(raw)
	if lower == "" || lower == "none" || lower == "n/a" {
		return ""
	}
	return raw
}

func extractSections(block string) map[string]string {
	matches := proposalKeyPattern.FindAllStringSubmatchIndex(block, -1)
	sections := make(map[string]string, len(matches))
	for i, m := range matches {
		key := strings.ToUpper(block[m[2]:m[3]])
		start := m[1]
		end := len(block)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections[key] = strings.TrimSpace(block[start:end])
	}
	return sections
}

var (
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	lineCommentPattern   = regexp.MustCompile(`//[^\n]*`)
)

// parseInputsJSON parses the INPUTS section as a JSON object, falling back
// to a tolerant re-parse that strips trailing commas and line comments
// (§4.3 generation contract).
func parseInputsJSON(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}

	cleaned := lineCommentPattern.ReplaceAllString(raw, "")
	cleaned = trailingCommaPattern.ReplaceAllString(cleaned, "$1")
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("parse inputs json: %w", err)
	}
	return out, nil
}

// requiredInputsPresent validates inputs against the tool's declared
// payload schema (§6.1) when one is registered; tools without a schema are
// accepted unconditionally.
func (g *Generator) requiredInputsPresent(tool string, inputs map[string]any) bool {
	spec, ok := g.toolSpecs[tool]
	if !ok || len(spec.Payload.Schema) == 0 {
		return true
	}
	schema, err := compileSchema(spec.Payload.Schema)
	if err != nil {
		return true // an unparseable schema cannot gate acceptance
	}
	return schema.Validate(map[string]any(inputs)) == nil
}

func compileSchema(schemaBytes []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schemaBytes, &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	// Schemas are per-call resources keyed by content so concurrent
	// generators never collide on the compiler's resource cache.
	url := "mem://schema/" + strconv.Itoa(len(schemaBytes)) + "-" + fmt.Sprintf("%x", schemaBytes[:min(8, len(schemaBytes))])
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// ParseScenarioKinds splits a comma-separated SCENARIOS value into known
// scenario kinds, ignoring anything unrecognized.
func ParseScenarioKinds(raw string) []memory.ScenarioKind {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	kinds := make([]memory.ScenarioKind, 0, len(parts))
	for _, part := range parts {
		k := memory.ScenarioKind(strings.ToUpper(strings.TrimSpace(part)))
		switch k {
		case memory.ScenarioSuccess, memory.ScenarioPartialSuccess, memory.ScenarioConnectionError,
			memory.ScenarioValidationError, memory.ScenarioSecurityError, memory.ScenarioTimeout,
			memory.ScenarioInsufficientData, memory.ScenarioToolNotFound, memory.ScenarioUnknownError,
			memory.ScenarioRateLimited, memory.ScenarioCancelled:
			kinds = append(kinds, k)
		}
	}
	return kinds
}
