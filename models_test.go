package idemflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowState(t *testing.T) {
	assert.False(t, WorkflowStateRunning.IsTerminal())
	assert.True(t, WorkflowStateCompleted.IsTerminal())
	assert.True(t, WorkflowStateFailed.IsTerminal())
	assert.True(t, WorkflowStateRunning.IsValid())
	assert.False(t, WorkflowState("PAUSED").IsValid())
}

func TestCheckpointNormalize(t *testing.T) {
	cp := &WorkflowCheckpoint{CompletedNodes: []string{"c", "a", "b", "a"}}
	cp.Normalize()
	assert.Equal(t, []string{"a", "b", "c"}, cp.CompletedNodes)

	empty := &WorkflowCheckpoint{}
	empty.Normalize()
	assert.NotNil(t, empty.CompletedNodes)
	assert.Empty(t, empty.CompletedNodes)
}

func TestCheckpointCovers(t *testing.T) {
	prev := &WorkflowCheckpoint{CompletedNodes: []string{"a", "b"}}

	assert.True(t, (&WorkflowCheckpoint{CompletedNodes: []string{"a", "b", "c"}}).Covers(prev))
	assert.True(t, (&WorkflowCheckpoint{CompletedNodes: []string{"a", "b"}}).Covers(prev))
	assert.False(t, (&WorkflowCheckpoint{CompletedNodes: []string{"a"}}).Covers(prev))
	assert.True(t, (&WorkflowCheckpoint{}).Covers(nil))
}

func TestCheckpointClone(t *testing.T) {
	cp := &WorkflowCheckpoint{
		WorkflowID:     "wf-1",
		CompletedNodes: []string{"a"},
		NodeOutputs:    map[string]json.RawMessage{"a": json.RawMessage(`1`)},
		Variables:      map[string]json.RawMessage{"x": json.RawMessage(`"y"`)},
	}

	clone := cp.Clone()
	clone.CompletedNodes[0] = "z"
	clone.NodeOutputs["a"][0] = '9'
	clone.Variables["new"] = json.RawMessage(`true`)

	assert.Equal(t, "a", cp.CompletedNodes[0])
	assert.Equal(t, json.RawMessage(`1`), cp.NodeOutputs["a"])
	assert.NotContains(t, cp.Variables, "new")
	assert.Nil(t, (*WorkflowCheckpoint)(nil).Clone())
}

func TestNewResumeState(t *testing.T) {
	cp := &WorkflowCheckpoint{
		WorkflowID:     "wf-1",
		CheckpointID:   "cp-1",
		State:          WorkflowStateRunning,
		CompletedNodes: []string{"b", "a"},
		NodeOutputs:    map[string]json.RawMessage{"a": json.RawMessage(`{"sum":3}`)},
	}

	state := NewResumeState(cp)
	require.NotNil(t, state)
	assert.Equal(t, "cp-1", state.CheckpointID)
	assert.True(t, state.IsCompleted("a"))
	assert.False(t, state.IsCompleted("c"))
	assert.Equal(t, []string{"a", "b"}, state.Completed())
	assert.NotNil(t, state.Variables)

	state.NodeOutputs["a"][2] = 'X'
	assert.Equal(t, json.RawMessage(`{"sum":3}`), cp.NodeOutputs["a"])
}
