// Package memory implements the planner's rich task memory: an append-only,
// typed, per-task-scoped log of executions, validations, decisions, and
// errors, plus evidence-extraction queries used both for LLM prompting and
// for goal-reachedness decisions.
//
// The store is in-process and non-durable: entries live for the lifetime of
// the owning Memory value and are never written to disk. Callers needing
// durability across process restarts are out of scope (see SPEC_FULL.md §1).
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/telemetry"
)

// ScenarioKind enumerates the outcome kinds the scenario predictor reasons
// about and the rich memory records against execution entries. Defined here
// (the leaf package in the dependency order) so both memory and scenario can
// share the same taxonomy without a cycle.
type ScenarioKind string

const (
	ScenarioSuccess          ScenarioKind = "SUCCESS"
	ScenarioPartialSuccess   ScenarioKind = "PARTIAL_SUCCESS"
	ScenarioValidationError  ScenarioKind = "VALIDATION_ERROR"
	ScenarioSecurityError    ScenarioKind = "SECURITY_ERROR"
	ScenarioConnectionError  ScenarioKind = "CONNECTION_ERROR"
	ScenarioTimeout          ScenarioKind = "TIMEOUT"
	ScenarioToolNotFound     ScenarioKind = "TOOL_NOT_FOUND"
	ScenarioUnknownError     ScenarioKind = "UNKNOWN_ERROR"
	ScenarioRateLimited      ScenarioKind = "RATE_LIMITED"
	ScenarioInsufficientData ScenarioKind = "INSUFFICIENT_DATA"
	ScenarioCancelled        ScenarioKind = "CANCELLED"
)

// EntryType discriminates the kind of observation carried by an Entry.
type EntryType string

const (
	EntryExecution       EntryType = "execution"
	EntryValidation      EntryType = "validation"
	EntryDecision        EntryType = "decision"
	EntryError           EntryType = "error"
	EntrySuccessPattern  EntryType = "success_pattern"
	EntryActiveContext   EntryType = "active_context"
	EntryProgressSummary EntryType = "progress_summary"
	EntryFileCreation    EntryType = "file_creation"
)

type (
	// Entry is one append-only observation in the rich memory. Entries are
	// never mutated after insertion; Payload's concrete type is determined by
	// Type (see ExecutionPayload, ValidationPayload, etc.).
	Entry struct {
		ID         string
		Type       EntryType
		Timestamp  time.Time
		Agent      string // "main" or "validator"
		Iteration  int
		Confidence float64
		Tags       []string
		TaskID     string
		Payload    any
	}

	// ExecutionPayload carries one execution-stream observation (§3.1
	// Execution Entry).
	ExecutionPayload struct {
		PlanID           string
		Thought          string
		Step             string
		Tool             string
		Inputs           map[string]any
		Observation      string
		Success          bool
		ExecutionTimeMs  int64
		ScoreAtDispatch  *float64
		RealizedScenario ScenarioKind
		FileCreated      string
		ContentLength    int
		ResultsCount     int
	}

	// ValidationPayload records a validator verdict summary.
	ValidationPayload struct {
		Completed             bool
		SuggestedNextActions  []string
		Issues                []string
	}

	// DecisionPayload records a search-engine decision (e.g., which plan was
	// popped and dispatched).
	DecisionPayload struct {
		Decision     string
		Rationale    string
		Alternatives []string
	}

	// ErrorPayload records a non-fatal failure.
	ErrorPayload struct {
		Message string
		Detail  string
		Tools   []string
	}

	// SuccessPatternPayload records an approach that worked, for future
	// failure-awareness and hint-alignment reasoning.
	SuccessPatternPayload struct {
		Description     string
		Tools           []string
		ExecutionTimeMs int64
		ToolData        map[string]any
	}

	// ActiveContextPayload records a free-text note about current task state.
	ActiveContextPayload struct {
		Summary string
	}

	// ProgressSummaryPayload records the engine's terminal or periodic summary.
	ProgressSummaryPayload struct {
		Outcome string // "success" | "failure" | "partial"
		Summary string
	}

	// FileCreationPayload records a successful file write, used by
	// GetTaskCompletionProof's evidence aggregation.
	FileCreationPayload struct {
		Filename string
		Tool     string
	}

	// TaskContext is the per-task scope: a unique id, a deterministic hash of
	// the task string, the ordered entries belonging to it, validation
	// bookkeeping, and timing.
	TaskContext struct {
		ID                string
		Hash              string
		Task              string
		StartTime         time.Time
		ValidationCount   int
		ConfidenceHistory []float64
		FinalOutcome      string
		completed         bool
	}

	// CompletionProof aggregates the evidence GoalStateDetection (and callers
	// rendering a final answer) use to judge whether real work happened.
	CompletionProof struct {
		HasImplementation  bool
		HasSynthesis       bool
		HasFileCreation    bool
		SynthesisEntries   []Entry
		FileCreationEntries []Entry
	}

	// Page is a forward page of entries for a task, returned by List.
	// Grounded on the teacher's runlog.Store cursor-pagination contract.
	Page struct {
		Entries    []Entry
		NextCursor string
	}
)

// synthesisMarkers is the closed set of filename substrings that mark a
// file write as "synthesis" output. The spec's two source helpers disagreed
// on this list (recommendations|final-answer|summary|solution vs
// recommendations|final-answer|comprehensive|synthesize); DESIGN.md
// Open Question decision 3 resolves this as their union, centralized here.
var synthesisMarkers = []string{
	"recommendations", "final-answer", "summary", "solution", "comprehensive", "synthesize",
}

// Memory is the rich task memory: an append-only, mutex-guarded entry log
// with per-task scoping. Grounded on the teacher's memory.Store contract
// (Store/Event/Reader) and runlog/inmem.Store's mutex + sequence pattern.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	tasks   map[string]*TaskContext
	current string

	logger telemetry.Logger
}

// New constructs an empty Memory. A nil logger installs a no-op logger.
func New(logger telemetry.Logger) *Memory {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Memory{
		tasks:  make(map[string]*TaskContext),
		logger: logger,
	}
}

// StartTaskContext creates a new task context, hashes the task string
// deterministically, and makes it the current context for subsequent
// AddEntry calls that omit a TaskID.
func (m *Memory) StartTaskContext(task string) *TaskContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := sha256.Sum256([]byte(task))
	tc := &TaskContext{
		ID:        uuid.NewString(),
		Hash:      hex.EncodeToString(sum[:8]),
		Task:      task,
		StartTime: time.Now(),
	}
	m.tasks[tc.ID] = tc
	m.current = tc.ID
	return tc
}

// CurrentTaskID returns the task context id most recently started.
func (m *Memory) CurrentTaskID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// AddEntry appends an entry. Insertion is infallible: a zero-value ID,
// timestamp, or TaskID are filled in from context. Entries are never
// mutated or removed after insertion (invariant 3.2.6 depends on this).
func (m *Memory) AddEntry(e Entry) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.TaskID == "" {
		e.TaskID = m.current
	}
	m.entries = append(m.entries, e)
	return e
}

// Query returns entries matching types (nil/empty means all types),
// optionally restricted to the current task context, optionally filtered by
// a case-insensitive keyword match against the entry's tags and payload
// description, capped to maxResults (0 means unbounded). Entries are
// returned in insertion order. A result of zero entries is a valid,
// non-error answer.
func (m *Memory) Query(types []EntryType, maxResults int, currentTaskOnly bool, keywordFilter string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	typeSet := make(map[EntryType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	kw := strings.ToLower(strings.TrimSpace(keywordFilter))

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if len(typeSet) > 0 && !typeSet[e.Type] {
			continue
		}
		if currentTaskOnly && e.TaskID != m.current {
			continue
		}
		if kw != "" && !entryMatchesKeyword(e, kw) {
			continue
		}
		out = append(out, e)
		if maxResults > 0 && len(out) >= maxResults {
			break
		}
	}
	return out
}

func entryMatchesKeyword(e Entry, kw string) bool {
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), kw) {
			return true
		}
	}
	switch p := e.Payload.(type) {
	case ExecutionPayload:
		return strings.Contains(strings.ToLower(p.Step), kw) || strings.Contains(strings.ToLower(p.Observation), kw)
	case ErrorPayload:
		return strings.Contains(strings.ToLower(p.Message), kw)
	case DecisionPayload:
		return strings.Contains(strings.ToLower(p.Decision), kw)
	case SuccessPatternPayload:
		return strings.Contains(strings.ToLower(p.Description), kw)
	case ActiveContextPayload:
		return strings.Contains(strings.ToLower(p.Summary), kw)
	case ProgressSummaryPayload:
		return strings.Contains(strings.ToLower(p.Summary), kw)
	case FileCreationPayload:
		return strings.Contains(strings.ToLower(p.Filename), kw)
	}
	return false
}

// RecordValidation appends a confidence observation to the current task's
// history and increments its validation counter.
func (m *Memory) RecordValidation(confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc := m.tasks[m.current]
	if tc == nil {
		return
	}
	tc.ValidationCount++
	tc.ConfidenceHistory = append(tc.ConfidenceHistory, confidence)
}

// LogError appends an error entry. Non-fatal by construction: the memory
// never rejects a log call.
func (m *Memory) LogError(message, detail string, iteration int, tools []string) Entry {
	return m.AddEntry(Entry{
		Type:      EntryError,
		Agent:     "main",
		Iteration: iteration,
		Payload:   ErrorPayload{Message: message, Detail: detail, Tools: tools},
	})
}

// LogSuccessPattern appends a success_pattern entry describing an approach
// that worked, for future hint-alignment and failure-awareness reasoning.
func (m *Memory) LogSuccessPattern(description string, tools []string, confidence float64, executionTime time.Duration, toolData map[string]any) Entry {
	return m.AddEntry(Entry{
		Type:       EntrySuccessPattern,
		Agent:      "main",
		Confidence: confidence,
		Payload: SuccessPatternPayload{
			Description:     description,
			Tools:           tools,
			ExecutionTimeMs: executionTime.Milliseconds(),
			ToolData:        toolData,
		},
	})
}

// LogDecision appends a decision entry (e.g., the plan the search engine
// chose to dispatch and why).
func (m *Memory) LogDecision(decision, rationale string, iteration int, confidence float64, alternatives []string) Entry {
	return m.AddEntry(Entry{
		Type:       EntryDecision,
		Agent:      "main",
		Iteration:  iteration,
		Confidence: confidence,
		Payload:    DecisionPayload{Decision: decision, Rationale: rationale, Alternatives: alternatives},
	})
}

// UpdateActiveContext appends an active_context entry summarizing current
// task state (used at task start and at notable transitions).
func (m *Memory) UpdateActiveContext(summary string, iteration int) Entry {
	return m.AddEntry(Entry{
		Type:      EntryActiveContext,
		Agent:     "main",
		Iteration: iteration,
		Payload:   ActiveContextPayload{Summary: summary},
	})
}

// LogFileCreation appends a file_creation entry for a successful write_file
// execution, feeding GetTaskCompletionProof's evidence aggregation.
func (m *Memory) LogFileCreation(filename, tool string, iteration int) Entry {
	return m.AddEntry(Entry{
		Type:      EntryFileCreation,
		Agent:     "main",
		Iteration: iteration,
		Payload:   FileCreationPayload{Filename: filename, Tool: tool},
	})
}

// GetTaskCompletionProof aggregates file-creation and synthesis evidence for
// the current task context. hasFileCreation holds iff at least one
// file_creation entry exists; hasSynthesis holds iff at least one
// file_creation entry's filename contains a synthesisMarkers substring;
// hasImplementation is their conjunction (§4.1).
func (m *Memory) GetTaskCompletionProof() CompletionProof {
	entries := m.Query([]EntryType{EntryFileCreation}, 0, true, "")

	proof := CompletionProof{}
	for _, e := range entries {
		p, ok := e.Payload.(FileCreationPayload)
		if !ok {
			continue
		}
		proof.HasFileCreation = true
		proof.FileCreationEntries = append(proof.FileCreationEntries, e)
		if filenameIsSynthesis(p.Filename) {
			proof.HasSynthesis = true
			proof.SynthesisEntries = append(proof.SynthesisEntries, e)
		}
	}
	proof.HasImplementation = proof.HasFileCreation && proof.HasSynthesis
	return proof
}

func filenameIsSynthesis(filename string) bool {
	lower := strings.ToLower(filename)
	for _, marker := range synthesisMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// GetBFSContext produces a compact text digest of recent entries for the
// current task, intended as bounded LLM prompt context. Callers cap the
// result length themselves (§4.3 bounds the plan-generation digest to 5000
// characters); GetBFSContext returns up to maxChars bytes of digest text,
// most-recent entries first.
func (m *Memory) GetBFSContext(iteration int, maxChars int) string {
	entries := m.Query(nil, 0, true, "")

	var b strings.Builder
	for i := len(entries) - 1; i >= 0 && b.Len() < maxChars; i-- {
		e := entries[i]
		b.WriteString(strconv.Itoa(e.Iteration))
		b.WriteString(": ")
		b.WriteString(string(e.Type))
		b.WriteString(" - ")
		b.WriteString(describePayload(e.Payload))
		b.WriteString("\n")
	}
	out := b.String()
	if len(out) > maxChars {
		out = out[:maxChars]
	}
	return out
}

func describePayload(payload any) string {
	switch p := payload.(type) {
	case ExecutionPayload:
		return p.Step + " -> " + p.Observation
	case ValidationPayload:
		return strings.Join(p.SuggestedNextActions, "; ")
	case DecisionPayload:
		return p.Decision
	case ErrorPayload:
		return p.Message
	case SuccessPatternPayload:
		return p.Description
	case ActiveContextPayload:
		return p.Summary
	case ProgressSummaryPayload:
		return p.Outcome + ": " + p.Summary
	case FileCreationPayload:
		return "created " + p.Filename
	default:
		return ""
	}
}

// CompleteTask seals the current task context with a final outcome tag and
// appends a terminal progress_summary entry.
func (m *Memory) CompleteTask(outcome, summary string) Entry {
	m.mu.Lock()
	tc := m.tasks[m.current]
	if tc != nil {
		tc.FinalOutcome = outcome
		tc.completed = true
	}
	m.mu.Unlock()

	return m.AddEntry(Entry{
		Type:    EntryProgressSummary,
		Agent:   "main",
		Payload: ProgressSummaryPayload{Outcome: outcome, Summary: summary},
	})
}

// List returns a forward, cursor-paginated page of entries for taskID.
// Grounded on the teacher's runlog.Store.List contract: cursor is the last
// returned entry's 1-based sequence number within the task, encoded as a
// decimal string; an empty cursor starts from the beginning. This is an
// additional read path alongside Query and does not change append-only or
// ordering semantics (§4.1 expansion).
func (m *Memory) List(taskID, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []Entry
	for _, e := range m.entries {
		if e.TaskID == taskID {
			all = append(all, e)
		}
	}

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return Page{}, err
		}
		start = n
	}
	if start >= len(all) {
		return Page{}, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	page := append([]Entry(nil), all[start:end]...)
	var next string
	if end < len(all) {
		next = strconv.Itoa(end)
	}
	return Page{Entries: page, NextCursor: next}, nil
}
