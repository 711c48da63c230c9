// Package validator implements the Validator Integration component (§4.4):
// a state machine coupling an external validator agent's verdicts with plan
// scoring, cooldowns, hint alignment, and goal-state detection.
package validator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/memory"
)

// negativeInfinityIteration models lastValidationIteration's initial "−∞"
// per §4.4's state-transition spec: any real iteration number is "since".
const negativeInfinityIteration = -1 << 62

// ForceCompletionRule names which deadlock-escape rule fired, if any.
type ForceCompletionRule string

const (
	// ForceCompletionNone indicates no force-completion rule has fired.
	ForceCompletionNone ForceCompletionRule = ""
	// ForceCompletionRepeatedVerdicts is the 10-identical-verdicts rule.
	ForceCompletionRepeatedVerdicts ForceCompletionRule = "repeated_verdicts"
	// ForceCompletionIterationBudget is the 20-iteration rule.
	ForceCompletionIterationBudget ForceCompletionRule = "iteration_budget"
)

// Verdict is the external validator's response (§3.1).
type Verdict struct {
	Completed            bool
	Confidence           float64
	Issues               []string
	SuggestedNextActions []string
	EvidenceNeeded       []string
	Rationale            string
	Timestamp            time.Time
	Iteration            int
}

// Agent is the narrow external collaborator contract (§6.3).
type Agent interface {
	Validate(ctx context.Context, task string, history []memory.ExecutionPayload) (Verdict, error)
}

// Config holds the validator.* tunables (§6.5).
type Config struct {
	MinConfidence float64
	Cooldown      int
}

// DefaultConfig returns the §6.5 defaults, with minConfidence resolved to
// the "live" value per DESIGN.md's Open Question decision.
func DefaultConfig() Config {
	return Config{MinConfidence: 0.4, Cooldown: 1}
}

// State is the aggregated, per-task validator state (§3.1 Validator State).
type State struct {
	History                 []Verdict
	Hints                   []string
	ConfidenceTrend         []float64 // length-10 ring buffer, oldest first
	LastValidationIteration int
	CooldownRemaining       int
	LastVerdict             *Verdict
	ForceCompletionFired    ForceCompletionRule
}

// NewState returns the initial validator state (§4.4).
func NewState() *State {
	return &State{LastValidationIteration: negativeInfinityIteration}
}

const confidenceTrendCapacity = 10

// RecordVerdict applies a validation call's state transition: decrements
// cooldown to 0, appends the verdict to history, pushes confidence onto the
// ring buffer, sets the last-validation iteration, and updates hints.
func (s *State) RecordVerdict(v Verdict) {
	if s.CooldownRemaining > 0 {
		s.CooldownRemaining--
	}
	s.History = append(s.History, v)
	s.ConfidenceTrend = append(s.ConfidenceTrend, v.Confidence)
	if len(s.ConfidenceTrend) > confidenceTrendCapacity {
		s.ConfidenceTrend = s.ConfidenceTrend[len(s.ConfidenceTrend)-confidenceTrendCapacity:]
	}
	s.LastValidationIteration = v.Iteration
	s.Hints = v.SuggestedNextActions
	verdict := v
	s.LastVerdict = &verdict
}

// synthesisSignals are the code/synthesis keywords goal-state detection
// filters the recent entry window to (§4.4).
var synthesisSignals = []string{
	"write_file", "execute_command", "synthesize", "recommendations",
	"final-answer", "comprehensive",
}

// BuildSyntheticHistory collects the last 20 {execution, validation, error}
// entries for a task and filters them to code/synthesis signals, per §4.4's
// goal-state-detection transform.
func BuildSyntheticHistory(entries []memory.Entry) []memory.ExecutionPayload {
	const window = 20
	start := 0
	if len(entries) > window {
		start = len(entries) - window
	}
	recent := entries[start:]

	var out []memory.ExecutionPayload
	for _, e := range recent {
		switch e.Type {
		case memory.EntryExecution, memory.EntryValidation, memory.EntryError:
		default:
			continue
		}
		if exec, ok := e.Payload.(memory.ExecutionPayload); ok {
			if matchesSynthesisSignal(exec) {
				out = append(out, exec)
			}
		}
	}
	return out
}

func matchesSynthesisSignal(exec memory.ExecutionPayload) bool {
	haystack := strings.ToLower(exec.Tool + " " + exec.Step + " " + exec.Thought)
	for _, sig := range synthesisSignals {
		if strings.Contains(haystack, sig) {
			return true
		}
	}
	return false
}

// GoalReached reports whether verdict satisfies the goal-state condition
// (§4.4): a pure function of (verdict, config), per §3.2 invariant 7.
func GoalReached(v Verdict, cfg Config) bool {
	return v.Completed && v.Confidence >= cfg.MinConfidence
}

// CheckForceCompletion evaluates the two independent deadlock-escape rules
// in the DESIGN.md-decided precedence order (10-verdict rule, then
// 20-iteration rule) and returns which one fires, if any. hasFileCreation
// reflects whether at least one successful file-creation entry exists in
// memory for the task.
func CheckForceCompletion(s *State, iteration int, hasFileCreation bool) ForceCompletionRule {
	if iteration > 15 && hasFileCreation && identicalSuggestedActionsStreak(s.History, 10) {
		return ForceCompletionRepeatedVerdicts
	}
	if iteration > 20 && identicalSuggestedActionsStreak(s.History, 3) {
		return ForceCompletionIterationBudget
	}
	return ForceCompletionNone
}

// identicalSuggestedActionsStreak reports whether the last n verdicts in
// history share the same suggested_next_actions set (order-insensitive).
func identicalSuggestedActionsStreak(history []Verdict, n int) bool {
	if len(history) < n || n == 0 {
		return false
	}
	tail := history[len(history)-n:]
	ref := actionSetKey(tail[0].SuggestedNextActions)
	for _, v := range tail[1:] {
		if actionSetKey(v.SuggestedNextActions) != ref {
			return false
		}
	}
	return true
}

func actionSetKey(actions []string) string {
	sorted := append([]string(nil), actions...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return strings.Join(sorted, "\x1f")
}

// Invoke runs one validation call: builds the synthetic history, invokes
// the external Agent, records the resulting verdict in Validator State and
// in memory, and returns the verdict plus whether the goal is now reached.
func Invoke(ctx context.Context, agent Agent, mem *memory.Memory, state *State, task string, iteration int, cfg Config) (Verdict, bool, error) {
	entries := mem.Query([]memory.EntryType{memory.EntryExecution, memory.EntryValidation, memory.EntryError}, 0, true, "")
	history := BuildSyntheticHistory(entries)

	v, err := agent.Validate(ctx, task, history)
	if err != nil {
		mem.LogError(fmt.Sprintf("validator call failed: %v", err), "", iteration, nil)
		return Verdict{}, false, err
	}
	v.Iteration = iteration
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}

	state.RecordVerdict(v)
	mem.RecordValidation(v.Confidence)
	mem.AddEntry(memory.Entry{
		Type:       memory.EntryValidation,
		Agent:      "validator",
		Iteration:  iteration,
		Confidence: v.Confidence,
	})

	return v, GoalReached(v, cfg), nil
}
