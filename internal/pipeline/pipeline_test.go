// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfuse/internal/crossref"
	"github.com/pdiddy/paperfuse/internal/export"
	"github.com/pdiddy/paperfuse/internal/lookup"
	"github.com/pdiddy/paperfuse/pkg/types"
)

type fakeSource struct {
	records []types.Record
}

func (f *fakeSource) Name() string     { return "fake" }
func (f *fakeSource) Concurrency() int { return 1 }

func (f *fakeSource) Search(_ context.Context, _ string, page int) ([]types.Record, error) {
	if page == 1 {
		return f.records, nil
	}
	return nil, nil
}

type fakeEnricher struct {
	byTitle map[string]crossref.Match
}

func (f *fakeEnricher) EnrichTitles(_ context.Context, titles []string) []lookup.Option[crossref.Match] {
	out := make([]lookup.Option[crossref.Match], len(titles))
	for i, title := range titles {
		if m, ok := f.byTitle[title]; ok {
			out[i] = lookup.Some(m)
		}
	}
	return out
}

type fakeRanker struct {
	byJournal map[string]types.RankingMetrics
}

func (f *fakeRanker) Annotate(_ context.Context, records []types.Record) {
	for i := range records {
		if m, ok := f.byJournal[records[i].Journal]; ok {
			records[i].Metrics = m
		}
	}
}

type fakeBatch struct {
	byDOI map[string]types.SourceRecord
	got   []string
}

func (f *fakeBatch) BatchLookup(_ context.Context, dois []string) (map[string]types.SourceRecord, error) {
	f.got = dois
	return f.byDOI, nil
}

type fakeClassifier struct {
	labels map[string]types.VerdictLabel
}

func (f *fakeClassifier) Classify(_ context.Context, records []types.UnifiedRecord) ([]types.Verdict, types.TokenUsage) {
	verdicts := make([]types.Verdict, len(records))
	for i, r := range records {
		label, ok := f.labels[r.DOI]
		if !ok {
			label = types.LabelUncertain
		}
		verdicts[i] = types.Verdict{ID: r.DOI, Title: r.Title, Label: label}
	}
	return verdicts, types.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
}

func fullPipeline() *Pipeline {
	return &Pipeline{
		Source: &fakeSource{records: []types.Record{
			{Title: "alpha", Venue: "some venue"},
			{Title: "beta"},
			{Title: "gamma"},
		}},
		Enricher: &fakeEnricher{byTitle: map[string]crossref.Match{
			"alpha": {DOI: "10.1/Alpha", Journal: "Nature", Abstract: "scraped a"},
			"beta":  {DOI: "10.1/beta", Journal: "Minor Journal"},
		}},
		Ranker: &fakeRanker{byJournal: map[string]types.RankingMetrics{
			"Nature":        {ImpactFactor: "49.9", Partition: "Q1"},
			"Minor Journal": {ImpactFactor: "0.8", Partition: "Q4"},
		}},
		Batch: &fakeBatch{byDOI: map[string]types.SourceRecord{
			"10.1/alpha": {TLDR: "summary a", PDFURL: "https://oa/a.pdf"},
		}},
		Classifier: &fakeClassifier{labels: map[string]types.VerdictLabel{
			"10.1/alpha": types.LabelRelevant,
			"10.1/beta":  types.LabelIrrelevant,
		}},
		Logger: zerolog.Nop(),
	}
}

func TestRun_EndToEnd(t *testing.T) {
	p := fullPipeline()

	report, err := p.Run(context.Background(), "q", []int{1, 2})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Found)
	assert.Equal(t, 2, report.Enriched)
	assert.Equal(t, 3, report.Ranked)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 2, report.Fused) // gamma has no DOI
	assert.Equal(t, 1, report.Relevant)
	assert.Equal(t, 1, report.Irrelevant)
	assert.Equal(t, 0, report.Uncertain)
	assert.Equal(t, uint64(15), report.Tokens.TotalTokens)

	require.Len(t, report.RelevantRecords, 1)
	r := report.RelevantRecords[0]
	assert.Equal(t, "alpha", r.Title)
	assert.Equal(t, "10.1/alpha", r.DOI)
	assert.Equal(t, "summary a", r.TLDR)
	assert.Equal(t, "https://oa/a.pdf", r.PDFURL)
	assert.Equal(t, "49.9", r.ImpactFactor)
}

func TestRun_ZeroSearchResultsEndsEarlyWithoutError(t *testing.T) {
	p := fullPipeline()
	p.Source = &fakeSource{}

	report, err := p.Run(context.Background(), "q", []int{1})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Found)
	assert.Empty(t, report.RelevantRecords)
}

func TestRun_FiltersCanEmptyTheRun(t *testing.T) {
	p := fullPipeline()
	min := 100.0
	p.Filters = types.FilterSpec{MinImpactFactor: &min}

	report, err := p.Run(context.Background(), "q", []int{1})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Found)
	assert.Equal(t, 0, report.Ranked)
	assert.Empty(t, report.RelevantRecords)
}

func TestRun_StagesOffPassThrough(t *testing.T) {
	p := &Pipeline{
		Source: &fakeSource{records: []types.Record{
			{Title: "alpha", DOI: "10.1/a"},
			{Title: "beta", DOI: "10.1/b"},
		}},
		Logger: zerolog.Nop(),
	}

	report, err := p.Run(context.Background(), "q", []int{1})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Found)
	assert.Equal(t, 2, report.Fused)
	// No classifier: everything fused is the result.
	assert.Len(t, report.RelevantRecords, 2)
	assert.Empty(t, report.Verdicts)
}

func TestRun_BatchReceivesOnlyResolvedDOIs(t *testing.T) {
	p := fullPipeline()
	batch := p.Batch.(*fakeBatch)

	_, err := p.Run(context.Background(), "q", []int{1})
	require.NoError(t, err)

	assert.Equal(t, []string{"10.1/Alpha", "10.1/beta"}, batch.got)
}

func TestRun_CancelledContextAborts(t *testing.T) {
	p := fullPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, "q", []int{1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_WritesStageSnapshots(t *testing.T) {
	p := fullPipeline()
	run, err := export.NewRun(t.TempDir(), "kw", time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	p.Exporter = run

	_, err = p.Run(context.Background(), "q", []int{1})
	require.NoError(t, err)

	for _, name := range []string{
		export.FileSearch, export.FileCrossref, export.FileRankings,
		export.FileSemanticScholar, export.FileUnified, export.FileVerdicts,
		export.FileRelevant,
	} {
		_, err := os.Stat(filepath.Join(run.Dir, name))
		assert.NoError(t, err, "expected %s", name)
	}
}

func TestExtractRelevant_JoinIsCaseInsensitive(t *testing.T) {
	unified := []types.UnifiedRecord{
		{DOI: "10.1/abc", Title: "kept"},
		{DOI: "10.1/def", Title: "dropped"},
	}
	verdicts := []types.Verdict{
		{ID: "10.1/ABC", Label: types.LabelRelevant},
		{ID: "10.1/def", Label: types.LabelIrrelevant},
	}

	kept := extractRelevant(unified, verdicts)
	require.Len(t, kept, 1)
	assert.Equal(t, "kept", kept[0].Title)
}
