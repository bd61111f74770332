// Package casebank persists outcome-labeled cases as an append-only JSONL
// log and exports supervised pairs for retriever training. The log is never
// rewritten or deduplicated; a session loads a point-in-time pool snapshot
// and refreshes it explicitly.
package casebank

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Label is the outcome of the episode a case was recorded from.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNegative Label = "negative"
	LabelUnknown  Label = "unknown"
)

// CaseMeta is one stored case. Plan is either a raw string or the decoded
// JSON plan object, mirroring what was appended.
type CaseMeta struct {
	Query string `json:"case"`
	Plan  any    `json:"plan,omitempty"`
	Label Label  `json:"case_label"`
}

// trainingPair is one exported supervised record: the query that retrieved
// the case together with the eventual correctness signal of the episode.
type trainingPair struct {
	Query      string `json:"query"`
	Case       string `json:"case"`
	CaseLabel  Label  `json:"case_label"`
	Plan       any    `json:"plan"`
	TruthLabel bool   `json:"truth_label"`
}

var (
	// ErrNoPool means the memory log does not exist yet. Retrieval is
	// disabled upstream; this is not fatal.
	ErrNoPool = errors.New("memory log does not exist")

	// ErrEmptyPool means the log exists but holds no cases. There is no
	// retrieval target, which is a fatal load error.
	ErrEmptyPool = errors.New("memory log is empty")
)

const (
	poolFile     = "memory.jsonl"
	trainingFile = "training.jsonl"
)

// Store is rooted at one directory holding the case log and the training
// export. It assumes a single writer.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// PoolPath returns the case log location.
func (s *Store) PoolPath() string { return filepath.Join(s.dir, poolFile) }

// TrainingPath returns the training export location.
func (s *Store) TrainingPath() string { return filepath.Join(s.dir, trainingFile) }

// LoadPool reads the whole case log into a pool snapshot: the rendered case
// texts scored by the retriever, and per-case metadata. A line without the
// required case field fails the load; an empty log is ErrEmptyPool; a
// missing log is ErrNoPool.
func (s *Store) LoadPool() ([]string, []CaseMeta, error) {
	f, err := os.Open(s.PoolPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNoPool
		}
		return nil, nil, fmt.Errorf("open memory log: %w", err)
	}
	defer f.Close()

	var (
		texts []string
		meta  []CaseMeta
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw struct {
			Case  *string `json:"case"`
			Plan  any     `json:"plan"`
			Label Label   `json:"case_label"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, nil, fmt.Errorf("memory log line %d: %w", lineNo, err)
		}
		if raw.Case == nil {
			return nil, nil, fmt.Errorf("memory log line %d: missing required case field", lineNo)
		}

		label := raw.Label
		if label == "" {
			label = LabelUnknown
		}
		texts = append(texts, RenderCaseText(*raw.Case, raw.Plan))
		meta = append(meta, CaseMeta{Query: *raw.Case, Plan: raw.Plan, Label: label})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read memory log: %w", err)
	}
	if len(texts) == 0 {
		return nil, nil, ErrEmptyPool
	}
	return texts, meta, nil
}

// SaveEntry appends one case with a single write. The plan is stored as the
// raw serialized string the planner produced.
func (s *Store) SaveEntry(query, plan string, label Label) error {
	entry := CaseMeta{Query: query, Label: label}
	if plan != "" {
		entry.Plan = plan
	}
	return s.appendLine(s.PoolPath(), entry)
}

// ExportTrainingPair appends one supervised record for retriever retraining.
// The record carries the query that retrieved the case and the episode's
// correctness verdict, not merely the case's stored label.
func (s *Store) ExportTrainingPair(query string, c CaseMeta, truth bool) error {
	return s.appendLine(s.TrainingPath(), trainingPair{
		Query:      query,
		Case:       c.Query,
		CaseLabel:  c.Label,
		Plan:       c.Plan,
		TruthLabel: truth,
	})
}

func (s *Store) appendLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	// One write call keeps the append atomic for our single writer.
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append to %s: %w", filepath.Base(path), err)
	}
	return nil
}
