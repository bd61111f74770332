// Package agent runs the hierarchical planner/executor loop: a meta-planner
// decomposes a query into short task plans, an executor carries tasks out
// with tools, and the cycle repeats a bounded number of times.
package agent

import (
	"encoding/json"

	"github.com/rand/memento/internal/memory/retrieval"
)

// Task is one planned unit of work.
type Task struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Plan is the JSON document the meta-planner emits.
type Plan struct {
	Tasks []Task `json:"plan"`
}

// MetaCycle records one meta-planner round trip.
type MetaCycle struct {
	Cycle  int      `json:"cycle"`
	Input  []string `json:"input_messages"`
	Output string   `json:"output"`
}

// ExecStep records one completed executor task.
type ExecStep struct {
	TaskID int    `json:"task_id"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// ToolCallRecord is the audit record of one tool invocation.
type ToolCallRecord struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Result    string         `json:"result"`
}

// QueryRecord is the full trace of one processed query. It is created once
// per query and immutable afterwards.
type QueryRecord struct {
	ID             string                 `json:"task_id"`
	Query          string                 `json:"query"`
	Answer         string                 `json:"model_output"`
	PlanJSON       string                 `json:"plan_json"`
	MetaTrace      []MetaCycle            `json:"meta_trace"`
	ExecutorTrace  []ExecStep             `json:"executor_trace"`
	ToolTrace      []ToolCallRecord       `json:"tool_history"`
	RetrievedCases []retrieval.ScoredCase `json:"retrieved_cases,omitempty"`
}

// MarshalLine renders the record as one JSON line payload.
func (r *QueryRecord) MarshalLine() ([]byte, error) {
	return json.Marshal(r)
}
