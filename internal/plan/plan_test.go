package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyPlan(t *testing.T) {
	p := New("session-1", "ws-1", "build a parser")

	assert.Equal(t, "session-1", p.SessionID)
	assert.Equal(t, "ws-1", p.Workspace)
	assert.Equal(t, "build a parser", p.Task)
	assert.Empty(t, p.Steps)
	assert.Empty(t, p.Errors)
}

func TestAppendStep_StartsPending(t *testing.T) {
	p := New("session-1", "", "task")

	p2, id := p.AppendStep("researcher", "gather prior art")

	require.Len(t, p2.Steps, 1)
	step := p2.Steps[0]
	assert.Equal(t, id, step.ID)
	assert.Equal(t, "researcher", step.Agent)
	assert.Equal(t, StatusPending, step.Status)
	assert.Equal(t, 1, step.Attempt)
	assert.False(t, step.CreatedAt.IsZero())

	// Original plan untouched.
	assert.Empty(t, p.Steps)
}

func TestAppendStep_UniqueIDs(t *testing.T) {
	p := New("session-1", "", "task")
	p, id1 := p.AppendStep("researcher", "a")
	p, id2 := p.AppendStep("designer", "b")

	assert.NotEqual(t, id1, id2)
	require.Len(t, p.Steps, 2)
}

func TestUpdateStepStatus_ReplacesOnlyTarget(t *testing.T) {
	p := New("session-1", "", "task")
	p, id1 := p.AppendStep("researcher", "a")
	p, id2 := p.AppendStep("designer", "b")

	sibling := p.Steps[1]

	p2, err := p.UpdateStepStatus(id1, StatusInProgress, "", "")
	require.NoError(t, err)

	assert.Equal(t, StatusInProgress, p2.Steps[0].Status)
	assert.False(t, p2.Steps[0].StartedAt.IsZero())

	// The sibling step is carried over unchanged, by value.
	assert.Equal(t, sibling, p2.Steps[1])
	assert.Equal(t, id2, p2.Steps[1].ID)

	// The predecessor plan still holds the old value.
	assert.Equal(t, StatusPending, p.Steps[0].Status)
}

func TestUpdateStepStatus_UnknownStep(t *testing.T) {
	p := New("session-1", "", "task")

	_, err := p.UpdateStepStatus("missing", StatusInProgress, "", "")

	var unknown *UnknownStepError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.StepID)
}

func TestUpdateStepStatus_NeverRegresses(t *testing.T) {
	p := New("session-1", "", "task")
	p, id := p.AppendStep("coder", "write code")
	p, err := p.UpdateStepStatus(id, StatusInProgress, "", "")
	require.NoError(t, err)
	p, err = p.UpdateStepStatus(id, StatusCompleted, "done", "")
	require.NoError(t, err)

	for _, target := range []Status{StatusPending, StatusInProgress, StatusFailed} {
		_, err := p.UpdateStepStatus(id, target, "", "")
		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid, "completed -> %s must be rejected", target)
		assert.Equal(t, StatusCompleted, invalid.From)
		assert.Equal(t, target, invalid.To)
	}
}

func TestUpdateStepStatus_InProgressToPendingRejected(t *testing.T) {
	p := New("session-1", "", "task")
	p, id := p.AppendStep("coder", "write code")
	p, err := p.UpdateStepStatus(id, StatusInProgress, "", "")
	require.NoError(t, err)

	_, err = p.UpdateStepStatus(id, StatusPending, "", "")

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestUpdateStepStatus_FailedAppendsToErrorList(t *testing.T) {
	p := New("session-1", "", "task")
	p, id := p.AppendStep("coder", "write code")
	p, err := p.UpdateStepStatus(id, StatusInProgress, "", "")
	require.NoError(t, err)

	p2, err := p.UpdateStepStatus(id, StatusFailed, "", "compile error")
	require.NoError(t, err)

	require.Len(t, p2.Errors, 1)
	assert.Contains(t, p2.Errors[0], "compile error")
	assert.Contains(t, p2.Errors[0], id)

	// The predecessor's error list is untouched.
	assert.Empty(t, p.Errors)
}

func TestUpdateStepStatus_CompletedRecordsResult(t *testing.T) {
	p := New("session-1", "", "task")
	p, id := p.AppendStep("researcher", "gather")
	p, err := p.UpdateStepStatus(id, StatusInProgress, "", "")
	require.NoError(t, err)

	p, err = p.UpdateStepStatus(id, StatusCompleted, "findings", "")
	require.NoError(t, err)

	step, ok := p.Step(id)
	require.True(t, ok)
	assert.Equal(t, "findings", step.Result)
	assert.False(t, step.FinishedAt.IsZero())
}

func TestRetryStep_SpawnsNewStepWithIncrementedAttempt(t *testing.T) {
	p := New("session-1", "", "task")
	p, id := p.AppendStep("coder", "write code")
	p, err := p.UpdateStepStatus(id, StatusInProgress, "", "")
	require.NoError(t, err)
	p, err = p.UpdateStepStatus(id, StatusFailed, "", "boom")
	require.NoError(t, err)

	p2, retryID, err := p.RetryStep(id, "")
	require.NoError(t, err)

	assert.NotEqual(t, id, retryID)
	require.Len(t, p2.Steps, 2)

	retried := p2.Steps[1]
	assert.Equal(t, "coder", retried.Agent)
	assert.Equal(t, "write code", retried.Task)
	assert.Equal(t, 2, retried.Attempt)
	assert.Equal(t, StatusPending, retried.Status)

	// The failed step does not regress.
	assert.Equal(t, StatusFailed, p2.Steps[0].Status)
}

func TestRetryStep_RejectsNonFailedStep(t *testing.T) {
	p := New("session-1", "", "task")
	p, id := p.AppendStep("coder", "write code")

	_, _, err := p.RetryStep(id, "")
	require.Error(t, err)
}

func TestCurrentStep_FirstNonTerminalInOrder(t *testing.T) {
	p := New("session-1", "", "task")
	p, id1 := p.AppendStep("researcher", "a")
	p, _ = p.AppendStep("designer", "b")

	step, ok := p.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, id1, step.ID)

	p, err := p.UpdateStepStatus(id1, StatusInProgress, "", "")
	require.NoError(t, err)
	step, ok = p.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, id1, step.ID, "in_progress steps are still current")

	p, err = p.UpdateStepStatus(id1, StatusCompleted, "ok", "")
	require.NoError(t, err)
	step, ok = p.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, "designer", step.Agent)
}

func TestCurrentStep_NoneWhenAllTerminal(t *testing.T) {
	p := New("session-1", "", "task")
	p, id := p.AppendStep("researcher", "a")
	p, err := p.UpdateStepStatus(id, StatusCompleted, "ok", "")
	require.NoError(t, err)

	_, ok := p.CurrentStep()
	assert.False(t, ok)
	assert.True(t, p.Settled())
}

func TestLastTerminalStep(t *testing.T) {
	p := New("session-1", "", "task")
	p, id1 := p.AppendStep("researcher", "a")
	p, _ = p.AppendStep("designer", "b")

	_, ok := p.LastTerminalStep()
	assert.False(t, ok)

	p, err := p.UpdateStepStatus(id1, StatusCompleted, "ok", "")
	require.NoError(t, err)

	step, ok := p.LastTerminalStep()
	require.True(t, ok)
	assert.Equal(t, id1, step.ID)
}
