package idemflow

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// WorkflowState represents the state recorded in a checkpoint
type WorkflowState string

const (
	WorkflowStateRunning   WorkflowState = "RUNNING"
	WorkflowStateCompleted WorkflowState = "COMPLETED"
	WorkflowStateFailed    WorkflowState = "FAILED"
)

// IsTerminal returns true if the state is a final state
func (s WorkflowState) IsTerminal() bool {
	return s == WorkflowStateCompleted || s == WorkflowStateFailed
}

// IsValid reports whether s is one of the known states
func (s WorkflowState) IsValid() bool {
	return s == WorkflowStateRunning || s.IsTerminal()
}

// String returns the string representation
func (s WorkflowState) String() string {
	return string(s)
}

// WorkflowCheckpoint is a snapshot of partial workflow progress
type WorkflowCheckpoint struct {
	// Identity
	WorkflowID   string `json:"workflowId" dynamodbav:"workflow_id"`
	CheckpointID string `json:"checkpointId" dynamodbav:"checkpoint_id"`

	// Timing
	CreatedAt time.Time `json:"createdAt" dynamodbav:"created_at"`

	// Progress
	CompletedNodes []string      `json:"completedNodes" dynamodbav:"completed_nodes"`
	State          WorkflowState `json:"state" dynamodbav:"state"`

	// Data (serialized as JSON bytes)
	NodeOutputs map[string]json.RawMessage `json:"nodeOutputs,omitempty" dynamodbav:"node_outputs,omitempty"`
	Variables   map[string]json.RawMessage `json:"variables,omitempty" dynamodbav:"variables,omitempty"`
}

// Normalize sorts and de-duplicates CompletedNodes in place
func (cp *WorkflowCheckpoint) Normalize() {
	nodes := slices.Clone(cp.CompletedNodes)
	slices.Sort(nodes)
	cp.CompletedNodes = slices.Compact(nodes)
	if cp.CompletedNodes == nil {
		cp.CompletedNodes = []string{}
	}
}

// HasCompleted reports whether node is in the completed set
func (cp *WorkflowCheckpoint) HasCompleted(node string) bool {
	return slices.Contains(cp.CompletedNodes, node)
}

// Covers reports whether cp's completed set contains every node of prev
func (cp *WorkflowCheckpoint) Covers(prev *WorkflowCheckpoint) bool {
	if prev == nil {
		return true
	}
	for _, node := range prev.CompletedNodes {
		if !cp.HasCompleted(node) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy
func (cp *WorkflowCheckpoint) Clone() *WorkflowCheckpoint {
	if cp == nil {
		return nil
	}
	out := *cp
	out.CompletedNodes = slices.Clone(cp.CompletedNodes)
	out.NodeOutputs = cloneRaw(cp.NodeOutputs)
	out.Variables = cloneRaw(cp.Variables)
	return &out
}

func cloneRaw(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}

// ResumeState is what a workflow driver needs to continue from a checkpoint
type ResumeState struct {
	WorkflowID     string
	CheckpointID   string
	State          WorkflowState
	CompletedNodes map[string]struct{}
	NodeOutputs    map[string]json.RawMessage
	Variables      map[string]json.RawMessage
}

// NewResumeState builds an independent resume state from cp
func NewResumeState(cp *WorkflowCheckpoint) *ResumeState {
	completed := make(map[string]struct{}, len(cp.CompletedNodes))
	for _, node := range cp.CompletedNodes {
		completed[node] = struct{}{}
	}
	outputs := cloneRaw(cp.NodeOutputs)
	if outputs == nil {
		outputs = make(map[string]json.RawMessage)
	}
	vars := cloneRaw(cp.Variables)
	if vars == nil {
		vars = make(map[string]json.RawMessage)
	}
	return &ResumeState{
		WorkflowID:     cp.WorkflowID,
		CheckpointID:   cp.CheckpointID,
		State:          cp.State,
		CompletedNodes: completed,
		NodeOutputs:    outputs,
		Variables:      vars,
	}
}

// IsCompleted reports whether node was completed before the checkpoint
func (r *ResumeState) IsCompleted(node string) bool {
	_, ok := r.CompletedNodes[node]
	return ok
}

// Completed returns the completed nodes in sorted order
func (r *ResumeState) Completed() []string {
	return slices.Sorted(maps.Keys(r.CompletedNodes))
}
