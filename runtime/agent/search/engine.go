package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/memory"
	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/plan"
	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/plannerconfig"
	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/scenario"
	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/telemetry"
	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/toolerrors"
	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/tools"
	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/validator"
)

const maxMemoryDigestChars = 5000

// SearchState is the aggregate per-task search state (§3.1).
type SearchState struct {
	Iteration int
	Task      string
	SessionID string
	Frontier  []plan.Plan
	Validator *validator.State
	Metrics   Metrics
	Config    plannerconfig.Config
}

// Engine drives the search loop for one task (§4.5). One Engine instance is
// used per task per §5's concurrency model; concurrent tasks require
// disjoint Engine instances with disjoint memory stores.
type Engine struct {
	mem       *memory.Memory
	predictor *scenario.Predictor
	generator *plan.Generator
	scorer    *plan.Scorer
	validator validator.Agent
	registry  ToolRegistry
	cfg       plannerconfig.Config

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	toolSpecs      []tools.ToolSpec
	knownFailures  []plan.KnownFailure
	adaptiveCool   *adaptiveCooldown
	debugSnapshots []SearchState

	state SearchState
}

// New constructs an Engine over its collaborators (§6).
func New(
	mem *memory.Memory,
	predictor *scenario.Predictor,
	generator *plan.Generator,
	scorer *plan.Scorer,
	validatorAgent validator.Agent,
	registry ToolRegistry,
	cfg plannerconfig.Config,
	logger telemetry.Logger,
	metrics telemetry.Metrics,
	tracer telemetry.Tracer,
) *Engine {
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}
	if tracer == nil {
		tracer = telemetry.NoopTracer{}
	}
	return &Engine{
		mem: mem, predictor: predictor, generator: generator, scorer: scorer,
		validator: validatorAgent, registry: registry, cfg: cfg,
		logger: logger, metrics: metrics, tracer: tracer,
		adaptiveCool: newAdaptiveCooldown(),
	}
}

// State returns a read-only snapshot of the current search state (§6.4).
func (e *Engine) State() SearchState { return e.state }

// ScenarioCache returns a read-only snapshot of the scenario predictor's
// cached distributions (§6.4).
func (e *Engine) ScenarioCache() map[string]scenario.Prediction { return e.predictor.Snapshot() }

// ExecuteTask runs the Initialize/Bootstrap/Iterate/Terminate loop (§4.5)
// and returns the rendered final answer. It blocks until completion or
// budget exhaustion. It returns an error when the tool registry cannot list
// its tools or the bootstrap LLM call fails (with an empty answer), and
// ctx.Err() together with the rendered answer when ctx is cancelled between
// iterations.
func (e *Engine) ExecuteTask(ctx context.Context, task, sessionID string) (string, error) {
	if err := e.initialize(ctx, task, sessionID); err != nil {
		return "", fmt.Errorf("search engine: initialize: %w", err)
	}
	if err := e.bootstrap(ctx); err != nil {
		return "", fmt.Errorf("search engine: bootstrap: %w", err)
	}

	for e.state.Iteration < e.cfg.MaxIterations {
		select {
		case <-ctx.Done():
			return e.terminate(), ctx.Err()
		default:
		}

		done := e.iterate(ctx)
		e.state.Metrics.TotalIterations++
		if e.cfg.Debug {
			e.debugSnapshots = append(e.debugSnapshots, e.state)
		}
		if done {
			break
		}
		e.state.Iteration++
	}

	return e.terminate(), nil
}

func (e *Engine) initialize(ctx context.Context, task, sessionID string) error {
	e.state = SearchState{Task: task, SessionID: sessionID, Config: e.cfg, Validator: validator.NewState()}
	e.mem.StartTaskContext(task)
	e.mem.UpdateActiveContext("task started: "+task, 0)

	specs, err := e.registry.ListTools(ctx)
	if err != nil {
		return err
	}
	e.toolSpecs = specs
	return nil
}

func (e *Engine) bootstrap(ctx context.Context) error {
	digest := e.memoryDigest(0)

	plans, err := e.generator.Generate(ctx, e.state.Task, 0, e.cfg.BeamWidth, digest)
	if err != nil {
		return err
	}
	e.scoreAndMergeFrontier(ctx, plans)
	return nil
}

func (e *Engine) memoryDigest(iteration int) string {
	if plan.IsSimpleQuestion(e.state.Task) {
		return ""
	}
	return e.mem.GetBFSContext(iteration, maxMemoryDigestChars)
}

// iterate runs one loop step (§4.5): pop, dispatch, record, detect
// goal-state, and refill the frontier. Returns true if the task is
// complete.
func (e *Engine) iterate(ctx context.Context) bool {
	if len(e.state.Frontier) == 0 {
		return true // nothing left to try; budget exhaustion terminates above
	}

	p := popHighestScored(&e.state.Frontier)
	e.mem.LogDecision(p.Action, p.Reasoning, e.state.Iteration, p.Score, frontierActions(e.state.Frontier))
	p.MarkExecuted()

	inputs := plan.NormalizeInputs(p.Tool, p.Inputs)
	success, observation, validated, completedByAction := e.dispatch(ctx, p, inputs)

	e.recordExecution(p, inputs, success, observation)
	e.state.Metrics.TotalExecutions++
	if !success {
		e.state.Metrics.TotalFailures++
	}

	proof := e.mem.GetTaskCompletionProof()
	forceRule := validator.CheckForceCompletion(e.state.Validator, e.state.Iteration, proof.HasFileCreation)
	if forceRule != validator.ForceCompletionNone {
		e.state.Validator.ForceCompletionFired = forceRule
	}

	// Goal-State Detection (§4.4) runs unconditionally at the end of every
	// iteration, independent of which tool was dispatched. When the dispatched
	// action already ran it (the trigger-gated Validation Action, §4.5.1), it
	// isn't invoked a second time this iteration.
	completed := completedByAction
	if !validated {
		reached, err := e.detectGoalState(ctx)
		if err != nil {
			e.logger.Error(ctx, "goal-state detection failed", "error", err)
		} else {
			completed = reached
		}
	}

	if completed || forceRule != validator.ForceCompletionNone {
		return true
	}

	e.refillFrontier(ctx, p.Depth+1)
	return false
}

// dispatch executes p's tool and returns the observed success/observation.
// validated reports whether this dispatch already ran the validator (so
// iterate need not run Goal-State Detection again this iteration); completed
// is the resulting goal-state verdict when validated is true.
//
// For tool=validate, this is the §4.5.1 Validation Action: the plan's
// declared trigger is evaluated against the current progress/confidence/
// iteration/validation-count signals, and the validator is invoked only when
// the trigger fires.
func (e *Engine) dispatch(ctx context.Context, p plan.Plan, inputs map[string]any) (success bool, observation string, validated bool, completed bool) {
	defer func() {
		if r := recover(); r != nil {
			success, observation, validated, completed = false, toolerrors.New(fmt.Sprintf("tool execution panicked: %v", r)).Error(), false, false
		}
	}()
	if strings.EqualFold(p.Tool, "validate") {
		trigger, _ := inputs["trigger"].(string)
		if trigger == "" {
			trigger = "manual"
		}
		progress, confidence := e.progressConfidence()
		ti := TriggerInputs{
			Trigger:         trigger,
			Iteration:       e.state.Iteration,
			Progress:        progress,
			Confidence:      confidence,
			ValidationCount: len(e.state.Validator.History),
		}
		if !ShouldTrigger(ti, DefaultCriteria(), e.adaptiveCool) {
			return true, "validation action not triggered", false, false
		}
		reached, err := e.detectGoalState(ctx)
		if err != nil {
			return false, err.Error(), true, false
		}
		return true, "validation action invoked", true, reached
	}

	if p.Tool == "" {
		return true, "no-op", false, false
	}

	result, err := e.registry.Execute(ctx, p.Tool, inputs)
	if err != nil {
		return false, toolerrors.NewWithCause("tool execution failed", err).Error(), false, false
	}
	if !result.Success {
		return false, toolerrors.New(result.Error).Error(), false, false
	}
	return true, fmt.Sprintf("%v", result.Result), false, false
}

// detectGoalState runs the unconditional end-of-iteration Goal-State
// Detection (§4.4): builds the synthetic history over the last 20 entries,
// invokes the validator, records the verdict, and reports whether the
// completion predicate is satisfied.
func (e *Engine) detectGoalState(ctx context.Context) (bool, error) {
	_, reached, err := validator.Invoke(ctx, e.validator, e.mem, e.state.Validator, e.state.Task, e.state.Iteration, validator.Config{
		MinConfidence: e.cfg.Validator.MinConfidence,
		Cooldown:      e.cfg.Validator.Cooldown,
	})
	e.state.Metrics.TotalValidations++
	e.adaptiveCool.recordValidation()
	return reached, err
}

func (e *Engine) recordExecution(p plan.Plan, inputs map[string]any, success bool, observation string) {
	realized := scenario.ClassifyOutcome(success, observation, p.Scenarios)
	if e.cfg.ScenarioPrediction.LearnFromOutcomes && p.Tool != "" {
		fp := scenario.Fingerprint(p.Tool, inputs)
		e.predictor.Learn(fp, realized)
	}

	score := p.Score
	e.mem.AddEntry(memory.Entry{
		Type:       memory.EntryExecution,
		Iteration:  e.state.Iteration,
		Confidence: p.Score,
		Payload: memory.ExecutionPayload{
			PlanID:           p.ID,
			Thought:          p.Reasoning,
			Step:             p.Action,
			Tool:             p.Tool,
			Inputs:           inputs,
			Observation:      observation,
			Success:          success,
			ScoreAtDispatch:  &score,
			RealizedScenario: realized,
		},
	})

	if strings.EqualFold(p.Tool, "write_file") && success {
		if filename, ok := inputs["filename"].(string); ok {
			e.mem.LogFileCreation(filename, p.Tool, e.state.Iteration)
		}
	}
	if !success {
		e.mem.LogError(observation, p.Action, e.state.Iteration, []string{p.Tool})
	}
}

func (e *Engine) refillFrontier(ctx context.Context, nextDepth int) {
	digest := e.memoryDigest(e.state.Iteration)
	plans, err := e.generator.Generate(ctx, e.state.Task, nextDepth, e.cfg.BeamWidth, digest)
	if err != nil {
		return // generation failure is non-fatal; the existing frontier (if any) carries on
	}
	e.scoreAndMergeFrontier(ctx, plans)
}

func (e *Engine) scoreAndMergeFrontier(ctx context.Context, plans []plan.Plan) {
	e.refreshKnownFailures()
	plan.ApplyFailureAwareness(plans, e.knownFailures)
	sc := e.scoringContext()
	if err := e.scorer.Score(ctx, e.state.Task, e.recentActions(), plans, sc); err != nil {
		e.logger.Error(ctx, "plan scoring failed", "error", err)
	}
	merged := append(e.state.Frontier, plans...)
	e.state.Frontier = sortTruncate(merged, e.cfg.BeamWidth)
}

// refreshKnownFailures rebuilds the engine's known-failure signatures from
// the last 20 error entries in memory (§4.3 rule 3), so
// plan.ApplyFailureAwareness can rewrite or penalize plans that repeat a
// recently failed action/tool pairing.
func (e *Engine) refreshKnownFailures() {
	const window = 20
	entries := e.mem.Query([]memory.EntryType{memory.EntryError}, 0, true, "")
	start := 0
	if len(entries) > window {
		start = len(entries) - window
	}
	recent := entries[start:]

	failures := make([]plan.KnownFailure, 0, len(recent))
	for _, entry := range recent {
		errPayload, ok := entry.Payload.(memory.ErrorPayload)
		if !ok || errPayload.Detail == "" {
			continue
		}
		var tool string
		if len(errPayload.Tools) > 0 {
			tool = errPayload.Tools[0]
		}
		failures = append(failures, plan.KnownFailure{ActionSubstring: errPayload.Detail, Tool: tool})
	}
	e.knownFailures = failures
}

// progressConfidence derives the current progress/confidence signals the
// Validation Action triggers (§4.5.1) and the plan-scoring adjustments
// (§4.3) both consult. Progress is 1 when the completion proof has an
// implementation, 0.5 when it has only a file creation, and 0 otherwise;
// confidence is the latest validator confidence (0 before any verdict).
// It does not apply ComputeProgress or ComputeConfidence.
func (e *Engine) progressConfidence() (progress, confidence float64) {
	vs := e.state.Validator
	if vs != nil && len(vs.ConfidenceTrend) > 0 {
		confidence = vs.ConfidenceTrend[len(vs.ConfidenceTrend)-1]
	}
	proof := e.mem.GetTaskCompletionProof()
	if proof.HasImplementation {
		progress = 1
	} else if proof.HasFileCreation {
		progress = 0.5
	}
	return progress, confidence
}

func (e *Engine) scoringContext() plan.ScoringContext {
	vs := e.state.Validator
	progress, confidence := e.progressConfidence()
	proof := e.mem.GetTaskCompletionProof()

	var issues []string
	if vs.LastVerdict != nil {
		issues = vs.LastVerdict.Issues
	}

	hintText := strings.ToLower(strings.Join(vs.Hints, " "))
	testAsking := strings.Contains(hintText, "test")
	codeAsking := strings.Contains(hintText, "implement") || strings.Contains(hintText, "code")

	return plan.ScoringContext{
		Hints:                  vs.Hints,
		OutstandingIssues:      issues,
		RepeatedFeedbackStreak: lastThreeVerdictsShareActions(vs.History),
		Progress:               progress,
		Confidence:             confidence,
		HasSuccessfulWriteFile: proof.HasFileCreation,
		TestAsking:             testAsking,
		CodeAsking:             codeAsking,
	}
}

// lastThreeVerdictsShareActions reports whether the last 3 recorded
// verdicts all suggested the same next actions (§4.3 adjustment 3's
// "repeated feedback" definition).
func lastThreeVerdictsShareActions(history []validator.Verdict) bool {
	if len(history) < 3 {
		return false
	}
	last := history[len(history)-3:]
	key := actionSetString(last[0].SuggestedNextActions)
	for _, v := range last[1:] {
		if actionSetString(v.SuggestedNextActions) != key {
			return false
		}
	}
	return true
}

func actionSetString(actions []string) string {
	sorted := append([]string(nil), actions...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x1f")
}

func (e *Engine) recentActions() []string {
	entries := e.mem.Query([]memory.EntryType{memory.EntryExecution}, 0, true, "")
	if len(entries) > 5 {
		entries = entries[len(entries)-5:]
	}
	actions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if exec, ok := entry.Payload.(memory.ExecutionPayload); ok {
			actions = append(actions, exec.Step)
		}
	}
	return actions
}

// terminate renders the final answer (§4.5) from whatever evidence exists,
// recording a progress_summary entry with the derived outcome tag.
func (e *Engine) terminate() string {
	outcome := e.deriveOutcome()
	summary := fmt.Sprintf("task %q completed with outcome %q after %d iteration(s)", e.state.Task, outcome, e.state.Iteration)
	e.mem.UpdateActiveContext(summary, e.state.Iteration)
	e.mem.CompleteTask(outcome, summary)
	return summary
}

// deriveOutcome classifies the task by the success ratio of the 10 most
// recent execution entries (§4.5 Termination): at least 0.8 is "success",
// at most 0.2 (or no entries) is "failure", anything between is "partial".
func (e *Engine) deriveOutcome() string {
	entries := e.mem.Query([]memory.EntryType{memory.EntryExecution}, 0, true, "")
	if len(entries) > 10 {
		entries = entries[len(entries)-10:]
	}
	if len(entries) == 0 {
		return "failure"
	}
	successes := 0
	for _, entry := range entries {
		if exec, ok := entry.Payload.(memory.ExecutionPayload); ok && exec.Success {
			successes++
		}
	}
	ratio := float64(successes) / float64(len(entries))
	switch {
	case ratio >= 0.8:
		return "success"
	case ratio <= 0.2:
		return "failure"
	default:
		return "partial"
	}
}

// frontierActions lists the remaining frontier's actions, used as the
// "alternatives" considered-but-not-taken record on a decision entry.
func frontierActions(frontier []plan.Plan) []string {
	actions := make([]string, 0, len(frontier))
	for _, p := range frontier {
		actions = append(actions, p.Action)
	}
	return actions
}

// popHighestScored removes and returns the highest-scored plan from an
// already-sorted frontier (§3.2 invariant 1: sorted descending).
func popHighestScored(frontier *[]plan.Plan) plan.Plan {
	p := (*frontier)[0]
	*frontier = (*frontier)[1:]
	return p
}

// sortTruncate sorts plans by score descending and truncates to beamWidth
// (§3.2 invariant 1).
func sortTruncate(plans []plan.Plan, beamWidth int) []plan.Plan {
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].Score > plans[j].Score })
	if beamWidth > 0 && len(plans) > beamWidth {
		plans = plans[:beamWidth]
	}
	return plans
}
