package search

import (
	"time"

	"golang.org/x/time/rate"
)

// Criteria holds the per-trigger thresholds for the Validation Action
// (§4.5.1).
type Criteria struct {
	MinProgress    float64
	MinConfidence  float64
	LevelThreshold int
}

// DefaultCriteria returns the §4.5.1 defaults.
func DefaultCriteria() Criteria {
	return Criteria{MinProgress: 0.5, MinConfidence: 0.7, LevelThreshold: 3}
}

// TriggerInputs carries the per-iteration signals the five trigger
// conditions consult.
type TriggerInputs struct {
	Trigger         string // progress | confidence | level | manual | adaptive
	Iteration       int
	Progress        float64
	Confidence      float64
	ValidationCount int
}

// adaptiveCooldown backs the adaptive trigger's "time since last validation
// > 10s" check with a token-bucket limiter (golang.org/x/time/rate) instead
// of a hand-rolled timestamp diff, matching the token-bucket idiom already
// used for cooldown-like checks in the example pack.
type adaptiveCooldown struct {
	limiter *rate.Limiter
}

func newAdaptiveCooldown() *adaptiveCooldown {
	return &adaptiveCooldown{limiter: rate.NewLimiter(rate.Every(10*time.Second), 1)}
}

// elapsedSinceLast reports whether at least 10s have passed since the last
// validation, read from the limiter's refilled token count without
// consuming it — adaptive evaluation may run many times between actual
// validations.
func (c *adaptiveCooldown) elapsedSinceLast() bool {
	return c.limiter.Tokens() >= 1
}

// recordValidation consumes a token, resetting the 10s window.
func (c *adaptiveCooldown) recordValidation() {
	c.limiter.Allow()
}

// ShouldTrigger evaluates the trigger named by in.Trigger against criteria
// (§4.5.1). The adaptive trigger additionally consults cooldown for the
// "time since last validation" leg of its 3-of-5 vote.
func ShouldTrigger(in TriggerInputs, criteria Criteria, cooldown *adaptiveCooldown) bool {
	switch in.Trigger {
	case "progress":
		return in.Progress >= criteria.MinProgress
	case "confidence":
		return in.Confidence <= criteria.MinConfidence
	case "level":
		return in.Iteration >= criteria.LevelThreshold
	case "manual":
		return true
	case "adaptive":
		votes := 0
		if in.Progress >= 0.3 {
			votes++
		}
		if in.Confidence <= 0.8 {
			votes++
		}
		if in.Iteration >= 2 {
			votes++
		}
		if in.ValidationCount < 5 {
			votes++
		}
		if cooldown == nil || cooldown.elapsedSinceLast() {
			votes++
		}
		return votes >= 3
	default:
		return false
	}
}

// ProgressSignals are the boolean evidence flags the progress formula
// consults (§4.5.1).
type ProgressSignals struct {
	SuccessRate               float64
	AnySuccessfulWebResearch  bool
	AnySuccessfulCommand      bool
	AnyFileCreation           bool
	AnySynthesisFile          bool
	AnyValidation             bool
}

// ComputeProgress implements the §4.5.1 progress formula.
func ComputeProgress(s ProgressSignals) float64 {
	v := s.SuccessRate * 0.2
	if s.AnySuccessfulWebResearch {
		v += 0.1
	}
	if s.AnySuccessfulCommand {
		v += 0.2
	}
	if s.AnyFileCreation {
		v += 0.2
	}
	if s.AnySynthesisFile {
		v += 0.2
	}
	if s.AnyValidation {
		v += 0.1
	}
	return v
}

// ConfidenceSignals are the rates the confidence formula consults (§4.5.1).
type ConfidenceSignals struct {
	Last5SuccessRate          float64
	OverallSuccessRate        float64
	MeanValidatorConfidence   float64
}

// ComputeConfidence implements the §4.5.1 confidence formula.
func ComputeConfidence(s ConfidenceSignals) float64 {
	return s.Last5SuccessRate*0.4 + s.OverallSuccessRate*0.3 + s.MeanValidatorConfidence*0.3
}
