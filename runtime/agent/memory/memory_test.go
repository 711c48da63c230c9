package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davechendatascience/ai-showmaker-sub000/runtime/agent/memory"
)

func TestQueryIsolatesByTaskContext(t *testing.T) {
	m := memory.New(nil)

	m.StartTaskContext("task A")
	m.AddEntry(memory.Entry{Type: memory.EntryExecution, Payload: memory.ExecutionPayload{Step: "a1"}})
	m.AddEntry(memory.Entry{Type: memory.EntryExecution, Payload: memory.ExecutionPayload{Step: "a2"}})
	m.AddEntry(memory.Entry{Type: memory.EntryExecution, Payload: memory.ExecutionPayload{Step: "a3"}})

	m.StartTaskContext("task B")
	m.AddEntry(memory.Entry{Type: memory.EntryExecution, Payload: memory.ExecutionPayload{Step: "b1"}})
	m.AddEntry(memory.Entry{Type: memory.EntryExecution, Payload: memory.ExecutionPayload{Step: "b2"}})

	got := m.Query([]memory.EntryType{memory.EntryExecution}, 0, true, "")
	require.Len(t, got, 2)
	assert.Equal(t, "b1", got[0].Payload.(memory.ExecutionPayload).Step)
	assert.Equal(t, "b2", got[1].Payload.(memory.ExecutionPayload).Step)
}

func TestQueryEmptyResultIsNotAnError(t *testing.T) {
	m := memory.New(nil)
	m.StartTaskContext("empty task")
	got := m.Query([]memory.EntryType{memory.EntryError}, 0, true, "")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetTaskCompletionProof(t *testing.T) {
	m := memory.New(nil)
	m.StartTaskContext("write a summary")

	assert.False(t, m.GetTaskCompletionProof().HasImplementation)

	m.LogFileCreation("notes.md", "write_file", 1)
	proof := m.GetTaskCompletionProof()
	assert.True(t, proof.HasFileCreation)
	assert.False(t, proof.HasSynthesis)
	assert.False(t, proof.HasImplementation)

	m.LogFileCreation("final-answer.md", "write_file", 2)
	proof = m.GetTaskCompletionProof()
	assert.True(t, proof.HasSynthesis)
	assert.True(t, proof.HasImplementation)
}

func TestGetTaskCompletionProofIsIdempotent(t *testing.T) {
	m := memory.New(nil)
	m.StartTaskContext("idempotent check")
	m.LogFileCreation("solution.md", "write_file", 1)

	first := m.GetTaskCompletionProof()
	second := m.GetTaskCompletionProof()
	assert.Equal(t, first, second)
}

func TestRecordValidationTracksHistory(t *testing.T) {
	m := memory.New(nil)
	tc := m.StartTaskContext("task")
	m.RecordValidation(0.4)
	m.RecordValidation(0.6)

	// Validation bookkeeping is observable through the task context returned
	// by StartTaskContext; insertion also remains append-only for
	// surrounding entries.
	assert.Equal(t, 2, tc.ValidationCount)
	assert.Equal(t, []float64{0.4, 0.6}, tc.ConfidenceHistory)
	m.AddEntry(memory.Entry{Type: memory.EntryValidation, Payload: memory.ValidationPayload{Completed: false}})
	got := m.Query([]memory.EntryType{memory.EntryValidation}, 0, true, "")
	require.Len(t, got, 1)
}

func TestListPaginatesByCursor(t *testing.T) {
	m := memory.New(nil)
	tc := m.StartTaskContext("paginate me")
	for i := 0; i < 5; i++ {
		m.AddEntry(memory.Entry{Type: memory.EntryExecution, Payload: memory.ExecutionPayload{Step: "step"}})
	}

	page, err := m.List(tc.ID, "", 2)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 2)
	assert.NotEmpty(t, page.NextCursor)

	page2, err := m.List(tc.ID, page.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, page2.Entries, 2)

	page3, err := m.List(tc.ID, page2.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, page3.Entries, 1)
	assert.Empty(t, page3.NextCursor)
}

func TestAppendOnlyAcrossReads(t *testing.T) {
	m := memory.New(nil)
	m.StartTaskContext("append only")
	m.AddEntry(memory.Entry{Type: memory.EntryDecision, Payload: memory.DecisionPayload{Decision: "d1"}})

	r1 := m.Query(nil, 0, true, "")
	m.AddEntry(memory.Entry{Type: memory.EntryDecision, Payload: memory.DecisionPayload{Decision: "d2"}})
	r2 := m.Query(nil, 0, true, "")

	require.Len(t, r1, 1)
	require.Len(t, r2, 2)
	assert.Equal(t, r1[0], r2[0])
}
