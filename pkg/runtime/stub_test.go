package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCallback struct {
	statuses     []string
	stepsStarted []string
	stepsDone    []string
	stepErrs     []error
	message      string
}

func (r *recordingCallback) OnThreadRunUpdate(status string) { r.statuses = append(r.statuses, status) }
func (r *recordingCallback) OnRunStepStart(_ int, agentName string) {
	r.stepsStarted = append(r.stepsStarted, agentName)
}
func (r *recordingCallback) OnRunStepComplete(_ int, agentName, _, _ string, err error) {
	r.stepsDone = append(r.stepsDone, agentName)
	r.stepErrs = append(r.stepErrs, err)
}
func (r *recordingCallback) OnMessageDone(text string) { r.message = text }

func TestStub_NotConfigured(t *testing.T) {
	assert.False(t, NewStub().Configured())
}

func TestStub_CreateRunWalksDeterministicSequence(t *testing.T) {
	s := &Stub{StepDelay: time.Millisecond}
	cb := &recordingCallback{}

	threadID, err := s.CreateThread(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, threadID)

	require.NoError(t, s.CreateRun(context.Background(), threadID, "orchestrator", cb))

	assert.Equal(t, stubWalkthrough, cb.stepsStarted)
	assert.Equal(t, stubWalkthrough, cb.stepsDone)
	for _, stepErr := range cb.stepErrs {
		assert.NoError(t, stepErr)
	}
	assert.NotEmpty(t, cb.message)
	assert.Equal(t, []string{"in_progress", "completed"}, cb.statuses)
}

func TestStub_CreateRunRespectsCancellation(t *testing.T) {
	s := &Stub{StepDelay: time.Hour}
	cb := &recordingCallback{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.CreateRun(ctx, "thread", "orchestrator", cb)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStub_CreateOrUpdateAgentEchoesName(t *testing.T) {
	s := NewStub()
	id, err := s.CreateOrUpdateAgent(context.Background(), AgentSpec{Name: "orchestrator"})
	require.NoError(t, err)
	assert.Equal(t, "stub-orchestrator", id)
}
