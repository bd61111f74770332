package casebank

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSaveEntryLoadPoolRoundTrip(t *testing.T) {
	s := newTestStore(t)
	plan := `{"plan":[{"id":1,"description":"search for the release year"}]}`

	require.NoError(t, s.SaveEntry("when was Go released?", plan, LabelPositive))
	require.NoError(t, s.SaveEntry("what is 2+2?", "", LabelNegative))

	texts, meta, err := s.LoadPool()
	require.NoError(t, err)
	require.Len(t, texts, 2)
	require.Len(t, meta, 2)

	assert.Equal(t, "when was Go released?", meta[0].Query)
	assert.Equal(t, LabelPositive, meta[0].Label)
	assert.Contains(t, texts[0], "[CASE]\nwhen was Go released?")
	assert.Contains(t, texts[0], "[PLAN]\n1. search for the release year")

	assert.Equal(t, LabelNegative, meta[1].Label)
	assert.NotContains(t, texts[1], "[PLAN]")
}

func TestLoadPoolMissingFileIsErrNoPool(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.LoadPool()

	require.ErrorIs(t, err, ErrNoPool)
}

func TestLoadPoolEmptyFileIsFatal(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.PoolPath(), nil, 0o644))

	_, _, err := s.LoadPool()

	require.ErrorIs(t, err, ErrEmptyPool)
}

func TestLoadPoolMissingCaseFieldIsFatal(t *testing.T) {
	s := newTestStore(t)
	line := `{"plan":"do things","case_label":"positive"}` + "\n"
	require.NoError(t, os.WriteFile(s.PoolPath(), []byte(line), 0o644))

	_, _, err := s.LoadPool()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
	assert.Contains(t, err.Error(), "case field")
}

func TestLoadPoolDefaultsAbsentLabelToUnknown(t *testing.T) {
	s := newTestStore(t)
	line := `{"case":"unlabeled question"}` + "\n"
	require.NoError(t, os.WriteFile(s.PoolPath(), []byte(line), 0o644))

	_, meta, err := s.LoadPool()

	require.NoError(t, err)
	require.Len(t, meta, 1)
	assert.Equal(t, LabelUnknown, meta[0].Label)
}

func TestAppendNeverRewrites(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveEntry("q1", "", LabelPositive))
	first, err := os.ReadFile(s.PoolPath())
	require.NoError(t, err)

	require.NoError(t, s.SaveEntry("q1", "", LabelNegative))
	both, err := os.ReadFile(s.PoolPath())
	require.NoError(t, err)

	// The log is append-only: the original line survives duplicates.
	assert.True(t, strings.HasPrefix(string(both), string(first)))
	assert.Equal(t, 2, strings.Count(string(both), "\n"))
}

func TestExportTrainingPair(t *testing.T) {
	s := newTestStore(t)
	c := CaseMeta{Query: "old question", Plan: "old plan", Label: LabelPositive}

	require.NoError(t, s.ExportTrainingPair("fresh question", c, true))

	data, err := os.ReadFile(filepath.Join(filepath.Dir(s.PoolPath()), "training.jsonl"))
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))

	assert.Equal(t, "fresh question", gjson.Get(line, "query").String())
	assert.Equal(t, "old question", gjson.Get(line, "case").String())
	assert.Equal(t, "positive", gjson.Get(line, "case_label").String())
	assert.Equal(t, "old plan", gjson.Get(line, "plan").String())
	assert.True(t, gjson.Get(line, "truth_label").Bool())
}
