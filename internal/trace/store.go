// Package trace persists planner and executor activity to SQLite so a
// run can be inspected after the fact. Recording is best effort: a
// failed insert is logged, never bubbled into the query path.
package trace

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/rand/memento/internal/agent"
)

//go:embed schema.sql
var schemaSQL string

// Store records orchestration events. It implements agent.Recorder.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	ownsDB bool
}

var _ agent.Recorder = (*Store)(nil)

// Open creates or opens the trace database at path. An empty path uses
// a shared in-memory database.
func Open(path string) (*Store, error) {
	dsn := "file::memory:?cache=shared"
	if path != "" {
		dsn = "file:" + path
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open trace database: %w", err)
	}

	s := &Store{db: db, ownsDB: true}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection. The caller keeps ownership.
func NewWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("init trace schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginQuery registers a query before its first cycle runs.
func (s *Store) BeginQuery(queryID, question string) {
	s.exec(`INSERT OR IGNORE INTO queries (id, question, created_at) VALUES (?, ?, ?)`,
		queryID, question, time.Now().UnixMilli())
}

// FinishQuery records the final answer and plan for a query.
func (s *Store) FinishQuery(rec *agent.QueryRecord) {
	s.exec(`UPDATE queries SET answer = ?, plan_json = ? WHERE id = ?`,
		rec.Answer, rec.PlanJSON, rec.ID)
}

func (s *Store) MetaCycle(queryID string, mc agent.MetaCycle) {
	s.exec(`INSERT INTO meta_cycles (query_id, cycle, input, output, created_at) VALUES (?, ?, ?, ?, ?)`,
		queryID, mc.Cycle, strings.Join(mc.Input, "\n"), mc.Output, time.Now().UnixMilli())
}

func (s *Store) ExecStep(queryID string, step agent.ExecStep) {
	s.exec(`INSERT INTO exec_steps (query_id, task_id, input, output, created_at) VALUES (?, ?, ?, ?, ?)`,
		queryID, step.TaskID, step.Input, step.Output, time.Now().UnixMilli())
}

func (s *Store) ToolCall(queryID string, call agent.ToolCallRecord) {
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		args = []byte("{}")
	}
	s.exec(`INSERT INTO tool_calls (query_id, tool, arguments, result, created_at) VALUES (?, ?, ?, ?, ?)`,
		queryID, call.Tool, string(args), call.Result, time.Now().UnixMilli())
}

func (s *Store) exec(query string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(context.Background(), query, args...); err != nil {
		slog.Warn("trace write failed", "error", err)
	}
}

// QuerySummary is one row of the queries table.
type QuerySummary struct {
	ID        string
	Question  string
	Answer    string
	PlanJSON  string
	CreatedAt time.Time
}

// RecentQueries returns up to limit queries, newest first.
func (s *Store) RecentQueries(ctx context.Context, limit int) ([]QuerySummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, COALESCE(answer, ''), COALESCE(plan_json, ''), created_at
		FROM queries ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	var out []QuerySummary
	for rows.Next() {
		var q QuerySummary
		var createdAt int64
		if err := rows.Scan(&q.ID, &q.Question, &q.Answer, &q.PlanJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan trace row: %w", err)
		}
		q.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, q)
	}
	return out, rows.Err()
}
