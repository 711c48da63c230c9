package plan

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ScoreConfig holds the validator.* tunables the scorer needs (§6.5).
type ScoreConfig struct {
	HintBoost        float64
	SpecialHintBoost float64
}

// DefaultScoreConfig returns the §6.5 defaults.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{HintBoost: 0.35, SpecialHintBoost: 0.1}
}

// hintFamily is one entry of the closed semantic-family table (§4.3
// adjustment 1). Tools lists the canonical tool names the family covers;
// ActionSubstrings additionally matches no-op/synthesis actions by text.
type hintFamily struct {
	keywords        []string
	tools           []string
	actionSubstring []string
}

var hintFamilies = []hintFamily{
	{keywords: []string{"create", "write", "generate", "build"}, tools: []string{"write_file"}},
	{keywords: []string{"search", "find", "lookup", "research"}, tools: []string{"search_web"}},
	{keywords: []string{"execute", "run", "install", "command"}, tools: []string{"execute_command"}},
	{keywords: []string{"validate", "check", "verify", "test"}, tools: []string{"validate"}},
	{
		keywords:        []string{"synthesize", "summarize", "recommend", "final"},
		actionSubstring: []string{"synthesize", "summarize", "finalize", "report", "recommend"},
	},
}

// hintAligned reports whether any hint text names a family whose tools or
// action-substrings match the plan.
func hintAligned(p Plan, hints []string) bool {
	toolLower := strings.ToLower(p.Tool)
	actionLower := strings.ToLower(p.Action)
	for _, hint := range hints {
		hintLower := strings.ToLower(hint)
		for _, fam := range hintFamilies {
			if !containsAny(hintLower, fam.keywords) {
				continue
			}
			for _, t := range fam.tools {
				if t == toolLower {
					return true
				}
			}
			if containsAny(actionLower, fam.actionSubstring) {
				return true
			}
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// ScoringContext carries the validator-derived signals the score
// adjustments (§4.3) consult. The Validator Integration component
// populates this once built; until then callers may pass a zero value.
type ScoringContext struct {
	Hints                  []string
	OutstandingIssues      []string
	RepeatedFeedbackStreak bool // last 3 verdicts share suggested_next_actions
	Progress               float64
	Confidence             float64
	HasSuccessfulWriteFile bool
	TestAsking             bool
	CodeAsking             bool
}

// Scorer assigns utility scores to candidate plans via the LLM collaborator,
// then applies the deterministic §4.3 adjustments.
type Scorer struct {
	llm LLMScorer
	cfg ScoreConfig
}

// LLMScorer is the narrow subset of model.Client the scorer needs; defined
// separately so tests can supply a stub without constructing a full
// model.Client.
type LLMScorer interface {
	ScoreText(ctx context.Context, prompt string) (string, error)
}

// NewScorer constructs a Scorer over the given LLM scoring adapter.
func NewScorer(llm LLMScorer, cfg ScoreConfig) *Scorer {
	return &Scorer{llm: llm, cfg: cfg}
}

// Score assigns a base score to each plan via the LLM, falling back to the
// 0.6/0.2 heuristic on a malformed response, then applies the §4.3
// adjustments and the failure-awareness multiplier, clamping to [0,1].
func (s *Scorer) Score(ctx context.Context, task string, lastActions []string, plans []Plan, sc ScoringContext) error {
	base, err := s.baseScores(ctx, task, lastActions, plans)
	if err != nil {
		return err
	}

	for i := range plans {
		score := base[i] * plans[i].Metadata.ScoreMultiplier
		score = applyAdjustments(&plans[i], score, sc, s.cfg)
		plans[i].Score = clamp01(score)
	}
	return nil
}

func (s *Scorer) baseScores(ctx context.Context, task string, lastActions []string, plans []Plan) ([]float64, error) {
	fallback := make([]float64, len(plans))
	for i, p := range plans {
		if p.Tool != "" {
			fallback[i] = 0.6
		} else {
			fallback[i] = 0.2
		}
	}
	if s.llm == nil {
		return fallback, nil
	}

	prompt := buildScoringPrompt(task, lastActions, plans)
	text, err := s.llm.ScoreText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("plan scoring: llm call failed: %w", err)
	}

	parsed, ok := parseScoreLines(text, len(plans))
	if !ok {
		return fallback, nil
	}
	return parsed, nil
}

func buildScoringPrompt(task string, lastActions []string, plans []Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task)
	if n := len(lastActions); n > 0 {
		start := 0
		if n > 5 {
			start = n - 5
		}
		b.WriteString("Recent actions:\n")
		for _, a := range lastActions[start:] {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	b.WriteString("Candidate plans:\n")
	for i, p := range plans {
		fmt.Fprintf(&b, "%d. action=%q tool=%q reasoning=%q\n", i+1, p.Action, p.Tool, p.Reasoning)
	}
	b.WriteString("Return one score in [0,1] per line, in order.\n")
	return b.String()
}

// parseScoreLines parses one float per non-blank line; it requires exactly
// want well-formed scores to avoid silently misaligning plans and scores.
func parseScoreLines(text string, want int) ([]float64, bool) {
	var scores []float64
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		last := fields[len(fields)-1]
		last = strings.TrimSuffix(last, ".")
		v, err := strconv.ParseFloat(last, 64)
		if err != nil {
			return nil, false
		}
		scores = append(scores, v)
	}
	if len(scores) != want {
		return nil, false
	}
	return scores, true
}

// applyAdjustments applies the eight §4.3 score adjustments in order and
// returns the resulting (unclamped) score. Plan.Validator is updated with
// the alignment/impact bookkeeping the Validator Integration component
// reads back.
func applyAdjustments(p *Plan, score float64, sc ScoringContext, cfg ScoreConfig) float64 {
	// 1. Hint alignment boost.
	aligned := hintAligned(*p, sc.Hints)
	p.Validator.HintAligned = aligned
	if aligned {
		score += cfg.HintBoost
	}

	// 2. Issue-addressing boost.
	addressesIssue := matchesAny(p.Action+" "+p.Reasoning, sc.OutstandingIssues)
	p.Validator.IssueAddressed = addressesIssue
	if addressesIssue {
		score += 0.2
	}

	// 3. Repeated-feedback escalation.
	if sc.RepeatedFeedbackStreak && aligned {
		score += 0.4
	}

	// 4. Validation-action gating.
	if strings.EqualFold(p.Tool, "validate") {
		if sc.Progress >= 0.5 || sc.Confidence <= 0.6 {
			score += 0.3
		}
	}

	// 5. Synthesis-after-implementation boost.
	if isSynthesisWriteFile(*p) && sc.HasSuccessfulWriteFile {
		score += 0.2
	}

	// 6. Confidence-impact penalty (affects validator state, not score).
	if !aligned && sc.RepeatedFeedbackStreak {
		p.Validator.ConfidenceImpact = -0.1
	}

	// 7. Special-hint bonus.
	if sc.TestAsking && isTestOriented(*p) {
		score += cfg.SpecialHintBoost
	}
	if sc.CodeAsking && isImplementOriented(*p) {
		score += cfg.SpecialHintBoost
	}

	// 8. Depth-0 filter re-applied after scoring.
	if p.Depth == 0 && depthZeroBlocked.MatchString(p.Action) {
		score = 0
	}

	return score
}

func matchesAny(text string, needles []string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func isSynthesisWriteFile(p Plan) bool {
	if !strings.EqualFold(p.Tool, "write_file") {
		return false
	}
	lower := strings.ToLower(p.Action)
	return strings.Contains(lower, "synthesize") || strings.Contains(lower, "summarize") ||
		strings.Contains(lower, "final") || strings.Contains(lower, "report")
}

func isTestOriented(p Plan) bool {
	lower := strings.ToLower(p.Action + " " + p.Tool)
	return strings.Contains(lower, "test") || strings.Contains(lower, "validate") || strings.Contains(lower, "verify")
}

func isImplementOriented(p Plan) bool {
	lower := strings.ToLower(p.Action + " " + p.Tool)
	return strings.Contains(lower, "write_file") || strings.Contains(lower, "implement") || strings.Contains(lower, "build") || strings.Contains(lower, "create")
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
