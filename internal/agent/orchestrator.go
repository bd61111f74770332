package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rand/memento/internal/dispatch"
	"github.com/rand/memento/internal/llm"
	"github.com/rand/memento/internal/memory/casebank"
	"github.com/rand/memento/internal/memory/retrieval"
)

// CaseSource retrieves ranked, truncated memory cases for a query. A nil
// source, or one returning an error, just disables memory augmentation for
// that query.
type CaseSource interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.ScoredCase, error)
}

// Recorder receives trace events as they happen. BeginQuery fires before
// any cycle runs, so per-cycle events always follow their query.
type Recorder interface {
	BeginQuery(queryID, query string)
	MetaCycle(queryID string, c MetaCycle)
	ExecStep(queryID string, s ExecStep)
	ToolCall(queryID string, t ToolCallRecord)
}

// Options bound the loop.
type Options struct {
	// MaxCycles bounds meta-planner iterations.
	MaxCycles int

	// MaxContextTokens is the trimming budget for executor calls.
	MaxContextTokens int

	// MaxToolRounds bounds tool-call rounds per task; 0 means bounded only
	// by the context budget and the outer cycle ceiling.
	MaxToolRounds int

	// MetaCompletionTokens and ExecCompletionTokens cap completions for
	// the planner and executor backends. Zero means the provider default.
	MetaCompletionTokens int
	ExecCompletionTokens int

	// MaxPositive and MaxNegative cap guidance examples.
	MaxPositive int
	MaxNegative int
}

// Orchestrator drives the meta-planner/executor cycle for one query at a
// time. It is not safe for concurrent queries; the batch driver runs
// queries sequentially.
type Orchestrator struct {
	meta       llm.Backend
	exec       llm.Backend
	dispatcher *dispatch.Dispatcher
	memory     CaseSource
	recorder   Recorder
	estimator  llm.Estimator
	opts       Options

	// sharedHistory is session-scoped: it accumulates during one
	// ProcessQuery call and is cleared before returning.
	sharedHistory []llm.Message
}

// New builds an orchestrator. memory and recorder may be nil.
func New(meta, exec llm.Backend, dispatcher *dispatch.Dispatcher, memory CaseSource, recorder Recorder, estimator llm.Estimator, opts Options) *Orchestrator {
	if opts.MaxCycles <= 0 {
		opts.MaxCycles = 3
	}
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = 175000
	}
	if opts.MaxPositive <= 0 {
		opts.MaxPositive = 8
	}
	if opts.MaxNegative <= 0 {
		opts.MaxNegative = 8
	}
	if estimator == nil {
		estimator = llm.HeuristicEstimator{}
	}
	return &Orchestrator{
		meta:       meta,
		exec:       exec,
		dispatcher: dispatcher,
		memory:     memory,
		recorder:   recorder,
		estimator:  estimator,
		opts:       opts,
	}
}

// ProcessQuery runs the full planner/executor cycle and returns the trace.
// The loop always terminates: after MaxCycles without an explicit final
// answer, the last raw planner output becomes the degraded result.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string) (*QueryRecord, error) {
	rec := &QueryRecord{
		ID:    uuid.NewString(),
		Query: query,
	}
	if o.recorder != nil {
		o.recorder.BeginQuery(rec.ID, query)
	}

	// Session-scoped reset only; nothing global.
	defer func() { o.sharedHistory = nil }()

	o.appendHistory(llm.UserMessage(query))

	retrieved := o.retrieveCases(ctx, query)
	rec.RetrievedCases = retrieved
	if len(retrieved) > 0 {
		guidance := casebank.BuildGuidance(retrieval.Metas(retrieved), o.opts.MaxPositive, o.opts.MaxNegative)
		if guidance != "" {
			o.appendHistory(llm.UserMessage(guidance))
		}
	}

	schemas := o.dispatcher.Schemas()

	var (
		lastMetaOutput string
		answered       bool
	)
	for cycle := 0; cycle < o.opts.MaxCycles; cycle++ {
		plannerMsgs := o.plannerMessages()
		resp, err := o.meta.Chat(ctx, plannerMsgs, nil, o.opts.MetaCompletionTokens)
		if err != nil {
			return rec, fmt.Errorf("meta-planner cycle %d: %w", cycle, err)
		}
		lastMetaOutput = resp.Content

		mc := MetaCycle{Cycle: cycle, Input: messageContents(plannerMsgs), Output: resp.Content}
		rec.MetaTrace = append(rec.MetaTrace, mc)
		if o.recorder != nil {
			o.recorder.MetaCycle(rec.ID, mc)
		}
		o.appendHistory(llm.AssistantMessage(resp.Content))

		if strings.HasPrefix(resp.Content, finalAnswerMarker) {
			rec.Answer = strings.TrimSpace(strings.TrimPrefix(resp.Content, finalAnswerMarker))
			answered = true
			break
		}

		plan, planJSON, err := parsePlan(resp.Content)
		if err != nil {
			// Terminal for the query, never retried: the raw text is kept
			// verbatim for diagnosis.
			rec.Answer = fmt.Sprintf("[planner error] %v: %s", err, resp.Content)
			answered = true
			break
		}
		rec.PlanJSON = planJSON

		for _, task := range plan.Tasks {
			if err := o.runTask(ctx, rec, task, schemas); err != nil {
				return rec, err
			}
		}
	}

	if !answered {
		// Degraded deterministic termination: surface the last raw planner
		// output rather than waiting for an answer that is not coming.
		rec.Answer = strings.TrimSpace(lastMetaOutput)
	}
	return rec, nil
}

// runTask drives one executor turn until the backend returns free text
// instead of tool calls.
func (o *Orchestrator) runTask(ctx context.Context, rec *QueryRecord, task Task, schemas []llm.ToolSchema) error {
	taskDesc := fmt.Sprintf("Task %d: %s", task.ID, task.Description)

	// Local list is a read-only snapshot of shared history, rebuilt per
	// task; shared history stays the single source of truth.
	local := make([]llm.Message, 0, len(o.sharedHistory)+2)
	local = append(local, llm.SystemMessage(execSystemPrompt))
	local = append(local, o.sharedHistory...)
	local = append(local, llm.UserMessage(taskDesc))

	rounds := 0
	for {
		local = llm.Trim(local, o.opts.MaxContextTokens, o.estimator)
		resp, err := o.exec.Chat(ctx, local, schemas, o.opts.ExecCompletionTokens)
		if err != nil {
			return fmt.Errorf("executor task %d: %w", task.ID, err)
		}

		if len(resp.ToolCalls) == 0 {
			step := ExecStep{TaskID: task.ID, Input: taskDesc, Output: resp.Content}
			rec.ExecutorTrace = append(rec.ExecutorTrace, step)
			if o.recorder != nil {
				o.recorder.ExecStep(rec.ID, step)
			}
			o.appendHistory(llm.AssistantMessage(fmt.Sprintf("Task %d result: %s", task.ID, resp.Content)))
			return nil
		}

		rounds++
		if o.opts.MaxToolRounds > 0 && rounds > o.opts.MaxToolRounds {
			return fmt.Errorf("executor task %d: exceeded %d tool rounds", task.ID, o.opts.MaxToolRounds)
		}

		// Strictly sequential, in the order returned: later calls may
		// depend on state mutated by earlier ones.
		for _, call := range resp.ToolCalls {
			args, err := decodeArgs(call.Arguments)
			if err != nil {
				return fmt.Errorf("tool %q arguments: %w", call.Name, err)
			}
			result, err := o.dispatcher.Invoke(ctx, call.Name, args)
			if err != nil {
				return fmt.Errorf("executor task %d: %w", task.ID, err)
			}

			tc := ToolCallRecord{Tool: call.Name, Arguments: args, Result: result}
			rec.ToolTrace = append(rec.ToolTrace, tc)
			if o.recorder != nil {
				o.recorder.ToolCall(rec.ID, tc)
			}

			local = append(local,
				llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{call}},
				llm.ToolResultMessage(call, result),
			)
		}
	}
}

func (o *Orchestrator) retrieveCases(ctx context.Context, query string) []retrieval.ScoredCase {
	if o.memory == nil {
		return nil
	}
	cases, err := o.memory.Retrieve(ctx, query)
	if err != nil {
		slog.Warn("case retrieval failed, continuing without memory", "error", err)
		return nil
	}
	return cases
}

func (o *Orchestrator) plannerMessages() []llm.Message {
	msgs := make([]llm.Message, 0, len(o.sharedHistory)+1)
	msgs = append(msgs, llm.SystemMessage(metaSystemPrompt))
	msgs = append(msgs, o.sharedHistory...)
	return msgs
}

func (o *Orchestrator) appendHistory(m llm.Message) {
	o.sharedHistory = append(o.sharedHistory, m)
}

func decodeArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func messageContents(msgs []llm.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
