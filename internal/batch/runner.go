// Package batch runs a dataset of questions through the agent, grades
// each answer, and feeds the labeled outcome back into the case bank.
// Runs are resumable: questions already present in the result log are
// skipped.
package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/rand/memento/internal/agent"
	"github.com/rand/memento/internal/judge"
	"github.com/rand/memento/internal/memory/casebank"
)

// Example is one dataset entry.
type Example struct {
	Question    string
	GroundTruth []string
}

// LoadDataset reads a JSONL dataset. The ground_truth field may be a
// single string or a list.
func LoadDataset(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var out []Example
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec struct {
			Question    string          `json:"question"`
			GroundTruth json.RawMessage `json:"ground_truth"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("dataset line %d: %w", line, err)
		}
		if rec.Question == "" {
			return nil, fmt.Errorf("dataset line %d: missing question", line)
		}
		out = append(out, Example{
			Question:    rec.Question,
			GroundTruth: ensureList(rec.GroundTruth),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return out, nil
}

func ensureList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil && v != nil {
		return []string{fmt.Sprint(v)}
	}
	return nil
}

// Processor answers a single question. *agent.Orchestrator satisfies it.
type Processor interface {
	ProcessQuery(ctx context.Context, query string) (*agent.QueryRecord, error)
}

// Grader scores predictions. *judge.Judge satisfies it.
type Grader interface {
	Evaluate(ctx context.Context, question string, groundTruth []string, pred string) judge.Verdict
}

// Runner drives the process/grade/write-back loop.
type Runner struct {
	processor  Processor
	grader     Grader
	store      *casebank.Store
	resultPath string
}

func NewRunner(processor Processor, grader Grader, store *casebank.Store, resultPath string) *Runner {
	return &Runner{
		processor:  processor,
		grader:     grader,
		store:      store,
		resultPath: resultPath,
	}
}

// Stats summarizes one run.
type Stats struct {
	Processed int
	Correct   int
	Skipped   int
	Failed    int
}

// Run processes every example not already in the result log. Per-query
// failures are logged and skipped so one bad question cannot sink the
// run.
func (r *Runner) Run(ctx context.Context, examples []Example) (Stats, error) {
	finished, err := finishedQuestions(r.resultPath)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, ex := range examples {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if finished[ex.Question] {
			stats.Skipped++
			slog.Info("already answered, skipping", "question", ex.Question)
			continue
		}

		if err := r.runOne(ctx, ex, &stats); err != nil {
			stats.Failed++
			slog.Error("query failed", "question", ex.Question, "error", err)
		}
	}
	return stats, nil
}

func (r *Runner) runOne(ctx context.Context, ex Example, stats *Stats) error {
	rec, err := r.processor.ProcessQuery(ctx, ex.Question)
	if err != nil {
		return err
	}

	verdict := r.grader.Evaluate(ctx, ex.Question, ex.GroundTruth, rec.Answer)

	if err := r.appendResult(rec, ex, verdict); err != nil {
		return err
	}

	// Each retrieved case becomes a training pair labeled with the
	// query outcome, then the query itself joins the pool.
	for _, c := range rec.RetrievedCases {
		if err := r.store.ExportTrainingPair(ex.Question, c.CaseMeta, verdict.Correct); err != nil {
			return fmt.Errorf("export training pair: %w", err)
		}
	}
	label := casebank.LabelNegative
	if verdict.Correct {
		label = casebank.LabelPositive
	}
	if err := r.store.SaveEntry(ex.Question, rec.PlanJSON, label); err != nil {
		return fmt.Errorf("save memory entry: %w", err)
	}

	stats.Processed++
	if verdict.Correct {
		stats.Correct++
	}
	slog.Info("query graded",
		"question", ex.Question,
		"answer", rec.Answer,
		"judgement", verdict.Judgement)
	return nil
}

func (r *Runner) appendResult(rec *agent.QueryRecord, ex Example, verdict judge.Verdict) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	enriched := string(line)
	for _, kv := range []struct {
		key string
		val any
	}{
		{"question", ex.Question},
		{"plan", rec.PlanJSON},
		{"ground_truth", ex.GroundTruth},
		{"pred_answer", rec.Answer},
		{"judgement", verdict.Judgement},
		{"rationale", verdict.Rationale},
	} {
		if enriched, err = sjson.Set(enriched, kv.key, kv.val); err != nil {
			return fmt.Errorf("enrich result line: %w", err)
		}
	}

	f, err := os.OpenFile(r.resultPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open result log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write([]byte(enriched + "\n")); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

// finishedQuestions scans the result log for questions already
// answered in a previous run.
func finishedQuestions(path string) (map[string]bool, error) {
	out := make(map[string]bool)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open result log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !gjson.Valid(line) {
			continue
		}
		q := gjson.Get(line, "question")
		if !q.Exists() {
			q = gjson.Get(line, "query")
		}
		if q.Exists() {
			out[q.String()] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan result log: %w", err)
	}
	return out, nil
}
