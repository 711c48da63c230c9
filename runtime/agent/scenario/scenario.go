// Package scenario implements the scenario predictor and outcome learner:
// per-(tool, inputs) probability distributions over outcome kinds, cached
// with a TTL and updated from observed outcomes (§4.2).
package scenario

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/memory"
)

// Kind is an alias to the shared outcome taxonomy defined in the memory
// package (the leaf of the dependency order).
type Kind = memory.ScenarioKind

type (
	// ExpectedOutcome describes what a scenario predicts will happen if it is
	// the one realized.
	ExpectedOutcome struct {
		ResultType          string // "SUCCESS" | "PARTIAL" | "ERROR"
		ExpectedDataSketch  string
		ExpectedErrorKind   string
		LatencyMinMs        int
		LatencyMaxMs        int
		ExpectedMetadata    map[string]any
	}

	// Impact captures how a realized scenario should move the search
	// engine's progress/confidence scalars and whether it should trigger
	// validation or a frontier re-score.
	Impact struct {
		ProgressDelta     float64
		ConfidenceDelta   float64
		TimeDeltaMs       int64
		TriggerValidation bool
		RescoreFrontier   bool
	}

	// Scenario is one predicted outcome for a (tool, inputs) shape (§3.1 Tool
	// Scenario).
	Scenario struct {
		Kind            Kind
		Probability     float64
		Expected        ExpectedOutcome
		FollowUpHints   []string
		Impact          Impact
	}

	// Prediction is the cached result of a prediction round: the retained
	// scenarios plus an aggregate confidence.
	Prediction struct {
		Scenarios           []Scenario
		AggregateConfidence float64
		CreatedAt           time.Time
	}

	// Config holds the tunables from SPEC_FULL.md §6.5 under the
	// scenarioPrediction.* namespace.
	Config struct {
		Enabled                  bool
		MaxScenariosPerTool      int
		MinProbabilityThreshold  float64
		LearnFromOutcomes        bool
		CacheDuration            time.Duration
	}
)

// DefaultConfig returns the §6.5 defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		MaxScenariosPerTool:     5,
		MinProbabilityThreshold: 0.1,
		LearnFromOutcomes:       true,
		CacheDuration:           300 * time.Second,
	}
}

// baseProbability is the fixed table from §4.2 step 3.
var baseProbability = map[Kind]float64{
	memory.ScenarioSuccess:          0.70,
	memory.ScenarioPartialSuccess:   0.15,
	memory.ScenarioConnectionError:  0.03,
	memory.ScenarioValidationError:  0.05,
	memory.ScenarioSecurityError:    0.02,
	memory.ScenarioTimeout:          0.02,
	memory.ScenarioInsufficientData: 0.02,
	memory.ScenarioToolNotFound:     0.01,
	memory.ScenarioUnknownError:     0.01,
	memory.ScenarioRateLimited:      0.01,
	memory.ScenarioCancelled:        0.01,
}

// defaultKinds is the default candidate set used when the planner does not
// supply an explicit comma-separated scenario list.
var defaultKinds = []Kind{
	memory.ScenarioSuccess,
	memory.ScenarioPartialSuccess,
	memory.ScenarioConnectionError,
	memory.ScenarioValidationError,
	memory.ScenarioSecurityError,
	memory.ScenarioTimeout,
	memory.ScenarioInsufficientData,
	memory.ScenarioToolNotFound,
	memory.ScenarioUnknownError,
	memory.ScenarioRateLimited,
	memory.ScenarioCancelled,
}

// Predictor predicts and learns per-tool outcome distributions, backed by a
// Cache (MemCache by default; RedisCache when a Redis endpoint is
// configured per SPEC_FULL.md §1B).
type Predictor struct {
	cache  Cache
	config Config
}

// New constructs a Predictor over the given cache and configuration.
func New(cache Cache, cfg Config) *Predictor {
	if cache == nil {
		cache = NewMemCache()
	}
	return &Predictor{cache: cache, config: cfg}
}

// Snapshot returns every cached prediction keyed by fingerprint, for the
// planner API's read-only ScenarioCache() accessor (§6.4).
func (p *Predictor) Snapshot() map[string]Prediction {
	return p.cache.Snapshot()
}

// Fingerprint derives a deterministic cache key from a tool name and its
// input structure (§3.1, §8 property 8: two plans with identical (tool,
// inputs) must produce the same key).
func Fingerprint(tool string, inputs map[string]any) string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]any, len(inputs))
	for _, k := range keys {
		ordered[k] = inputs[k]
	}
	encoded, _ := json.Marshal(ordered)

	sum := sha256.Sum256([]byte(tool + "|" + string(encoded)))
	return hex.EncodeToString(sum[:])
}

// Predict returns the cached prediction for (tool, inputs) if still fresh,
// otherwise computes a fresh one from the base-probability table, caches
// it, and returns it. candidateKinds overrides the default kind set when
// non-empty (the planner may supply a comma-separated SCENARIOS list, §4.3).
//
// An empty tool name returns an empty prediction (no prior knowledge, no
// error) per §4.2's failure semantics.
func (p *Predictor) Predict(tool string, inputs map[string]any, candidateKinds []Kind) Prediction {
	if tool == "" {
		return Prediction{}
	}

	fp := Fingerprint(tool, inputs)
	if cached, ok := p.cache.Get(fp); ok && time.Since(cached.CreatedAt) < p.config.CacheDuration {
		return cached
	}

	kinds := candidateKinds
	if len(kinds) == 0 {
		kinds = defaultKinds
	}

	scenarios := make([]Scenario, 0, len(kinds))
	for _, k := range kinds {
		prob, ok := baseProbability[k]
		if !ok {
			continue
		}
		if prob < p.config.MinProbabilityThreshold {
			continue
		}
		scenarios = append(scenarios, Scenario{
			Kind:        k,
			Probability: prob,
			Expected:    expectedOutcomeFor(k, tool),
		})
	}

	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].Probability > scenarios[j].Probability })
	if max := p.config.MaxScenariosPerTool; max > 0 && len(scenarios) > max {
		scenarios = scenarios[:max]
	}

	pred := Prediction{
		Scenarios:           scenarios,
		AggregateConfidence: aggregateConfidence(scenarios),
		CreatedAt:           time.Now(),
	}
	p.cache.Set(fp, pred)
	return pred
}

func aggregateConfidence(scenarios []Scenario) float64 {
	if len(scenarios) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scenarios {
		sum += s.Probability
	}
	mean := sum / float64(len(scenarios))
	diversity := float64(len(scenarios)) / float64(len(defaultKinds))
	return (diversity + mean) / 2
}

// toolFamily classifies a tool name into the families §4.2 step 5 uses to
// synthesize expected latency/data descriptors.
func toolFamily(tool string) string {
	lower := strings.ToLower(tool)
	switch {
	case strings.Contains(lower, "search") || strings.Contains(lower, "research") || strings.Contains(lower, "lookup"):
		return "search"
	case strings.Contains(lower, "calc") || strings.Contains(lower, "math") || strings.Contains(lower, "compute"):
		return "calculation"
	case strings.Contains(lower, "extract") || strings.Contains(lower, "parse") || strings.Contains(lower, "read"):
		return "extraction"
	default:
		return "other"
	}
}

func expectedOutcomeFor(kind Kind, tool string) ExpectedOutcome {
	resultType := "SUCCESS"
	switch kind {
	case memory.ScenarioPartialSuccess:
		resultType = "PARTIAL"
	case memory.ScenarioSuccess:
		resultType = "SUCCESS"
	default:
		resultType = "ERROR"
	}

	eo := ExpectedOutcome{ResultType: resultType}
	if resultType == "ERROR" {
		eo.ExpectedErrorKind = string(kind)
	}

	switch toolFamily(tool) {
	case "search":
		eo.ExpectedDataSketch = "result-list"
		eo.LatencyMinMs, eo.LatencyMaxMs = 1000, 5000
	case "calculation":
		eo.ExpectedDataSketch = "numeric-result"
		eo.LatencyMinMs, eo.LatencyMaxMs = 100, 1000
	case "extraction":
		eo.ExpectedDataSketch = "content-string"
		eo.LatencyMinMs, eo.LatencyMaxMs = 2000, 10000
	default:
		eo.ExpectedDataSketch = "generic-result"
		eo.LatencyMinMs, eo.LatencyMaxMs = 500, 3000
	}
	return eo
}

// ClassifyOutcome matches an observed outcome against the predicted
// scenarios per §4.2's classification rules: success prefers SUCCESS,
// falling back to PARTIAL_SUCCESS; failure lowercase-substring-matches the
// observation against kind-specific keywords, falling back to
// UNKNOWN_ERROR.
func ClassifyOutcome(success bool, observation string, predicted []Scenario) Kind {
	has := func(k Kind) bool {
		for _, s := range predicted {
			if s.Kind == k {
				return true
			}
		}
		return false
	}

	if success {
		if has(memory.ScenarioSuccess) {
			return memory.ScenarioSuccess
		}
		return memory.ScenarioPartialSuccess
	}

	lower := strings.ToLower(observation)
	switch {
	case strings.Contains(lower, "validation"):
		return memory.ScenarioValidationError
	case strings.Contains(lower, "connection"), strings.Contains(lower, "network"):
		return memory.ScenarioConnectionError
	case strings.Contains(lower, "timeout"):
		return memory.ScenarioTimeout
	case strings.Contains(lower, "not found"):
		return memory.ScenarioToolNotFound
	case strings.Contains(lower, "rate limit"):
		return memory.ScenarioRateLimited
	default:
		return memory.ScenarioUnknownError
	}
}

// Learn applies the §4.2 learning-rate update to the cached prediction for
// fingerprint: the realized kind's probability increases by 0.10 (clamped
// to 1), every other retained kind's probability decreases by 0.05 (clamped
// to 0), and the aggregate confidence is recomputed. A cache miss is a
// no-op: there is nothing to learn from a prediction that was never made.
func (p *Predictor) Learn(fingerprint string, realized Kind) {
	if !p.config.LearnFromOutcomes {
		return
	}
	pred, ok := p.cache.Get(fingerprint)
	if !ok {
		return
	}

	for i := range pred.Scenarios {
		if pred.Scenarios[i].Kind == realized {
			pred.Scenarios[i].Probability = clamp01(pred.Scenarios[i].Probability + 0.10)
		} else {
			pred.Scenarios[i].Probability = clamp01(pred.Scenarios[i].Probability - 0.05)
		}
	}
	pred.AggregateConfidence = aggregateConfidence(pred.Scenarios)
	p.cache.Set(fingerprint, pred)
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
