// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfuse/pkg/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun() (RunMeta, []types.UnifiedRecord, []types.Verdict) {
	meta := RunMeta{
		Keyword:    "landslide",
		Source:     "gscholar",
		StartedAt:  time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 8, 26, 10, 5, 0, 0, time.UTC),
		Tokens:     types.TokenUsage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140},
	}
	unified := []types.UnifiedRecord{
		{DOI: "10.1/a", Title: "Paper A", Journal: "Nature", Partition: "Q1"},
		{DOI: "10.1/b", Title: "Paper B"},
	}
	verdicts := []types.Verdict{
		{ID: "10.1/a", Title: "Paper A", Label: types.LabelRelevant, Confidence: 0.9},
		{ID: "10.1/b", Title: "Paper B", Label: types.LabelIrrelevant, Confidence: 0.8},
	}
	return meta, unified, verdicts
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, dbFile))
	assert.NoError(t, err)
}

func TestSaveRun_RoundTrips(t *testing.T) {
	s := openStore(t)
	meta, unified, verdicts := sampleRun()

	runID, err := s.SaveRun(context.Background(), meta, unified, verdicts)
	require.NoError(t, err)
	require.Positive(t, runID)

	gotRecords, gotVerdicts, err := s.GetRun(context.Background(), runID)
	require.NoError(t, err)

	require.Len(t, gotRecords, 2)
	assert.Equal(t, "10.1/a", gotRecords[0].DOI)
	assert.Equal(t, "Q1", gotRecords[0].Partition)

	require.Len(t, gotVerdicts, 2)
	assert.Equal(t, types.LabelRelevant, gotVerdicts[0].Label)
	assert.Equal(t, 0.9, gotVerdicts[0].Confidence)
}

func TestListRuns_NewestFirstWithCounts(t *testing.T) {
	s := openStore(t)
	meta, unified, verdicts := sampleRun()

	_, err := s.SaveRun(context.Background(), meta, unified, verdicts)
	require.NoError(t, err)

	meta.Keyword = "slope stability"
	_, err = s.SaveRun(context.Background(), meta, unified[:1], verdicts[:1])
	require.NoError(t, err)

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "slope stability", runs[0].Keyword)
	assert.Equal(t, 1, runs[0].Records)
	assert.Equal(t, 1, runs[0].Relevant)

	assert.Equal(t, "landslide", runs[1].Keyword)
	assert.Equal(t, 2, runs[1].Records)
	assert.Equal(t, 1, runs[1].Relevant)
	assert.Equal(t, uint64(140), runs[1].Tokens.TotalTokens)
	assert.Equal(t, meta.StartedAt, runs[1].StartedAt)
}

func TestGetRun_UnknownIDFails(t *testing.T) {
	s := openStore(t)

	_, _, err := s.GetRun(context.Background(), 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOpen_ReopensExistingSchema(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	require.NoError(t, err)
	meta, unified, verdicts := sampleRun()
	_, err = s1.SaveRun(context.Background(), meta, unified, verdicts)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	runs, err := s2.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
