// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives one lookup run through its stages in order:
// search, title enrichment, venue ranking, batch metadata, fusion,
// relevance classification, relevant extraction.
// See docs/ARCHITECTURE § Pipeline.
package pipeline

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperfuse/internal/crossref"
	"github.com/pdiddy/paperfuse/internal/export"
	"github.com/pdiddy/paperfuse/internal/fuse"
	"github.com/pdiddy/paperfuse/internal/lookup"
	"github.com/pdiddy/paperfuse/internal/rankings"
	"github.com/pdiddy/paperfuse/internal/search"
	"github.com/pdiddy/paperfuse/pkg/types"
)

// Enricher resolves titles to DOIs and richer metadata.
type Enricher interface {
	EnrichTitles(ctx context.Context, titles []string) []lookup.Option[crossref.Match]
}

// Ranker attaches venue metrics to records in place.
type Ranker interface {
	Annotate(ctx context.Context, records []types.Record)
}

// BatchSource resolves DOIs to source metadata in bulk.
type BatchSource interface {
	BatchLookup(ctx context.Context, dois []string) (map[string]types.SourceRecord, error)
}

// Classifier produces one relevance verdict per unified record.
type Classifier interface {
	Classify(ctx context.Context, records []types.UnifiedRecord) ([]types.Verdict, types.TokenUsage)
}

// Pipeline wires the stages for one run. A nil stage is off: the data
// passes through it unchanged rather than failing.
type Pipeline struct {
	Source     search.Source
	Enricher   Enricher
	Ranker     Ranker
	Filters    types.FilterSpec
	Batch      BatchSource
	Classifier Classifier

	// Exporter, when set, receives a CSV snapshot after each stage.
	Exporter *export.Run

	Logger zerolog.Logger
}

// Report accounts for one run stage by stage, so an empty result is
// explainable: nothing found, filtered out, or classified away.
type Report struct {
	Found      int
	Enriched   int
	Ranked     int
	Matched    int
	Fused      int
	Relevant   int
	Irrelevant int
	Uncertain  int
	Tokens     types.TokenUsage

	// UnifiedRecords and Verdicts carry the full stage outputs for
	// archival; RelevantRecords is the final result set. With
	// classification off, RelevantRecords holds all unified records.
	UnifiedRecords  []types.UnifiedRecord
	Verdicts        []types.Verdict
	RelevantRecords []types.UnifiedRecord
}

// Run executes the pipeline for one query. Zero results at any stage ends
// the run early with a truthful report, not an error; errors are reserved
// for faults that invalidate the run (cancellation, export failures).
func (p *Pipeline) Run(ctx context.Context, query string, pages []int) (*Report, error) {
	report := &Report{}

	// Stage 1: search.
	out := search.Run(ctx, p.Source, query, pages, p.Logger)
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	records := out.Records
	report.Found = len(records)
	if len(records) == 0 {
		p.Logger.Info().Str("query", query).Msg("no search results, ending run")
		return report, nil
	}
	if err := p.snapshot(export.FileSearch, records); err != nil {
		return report, err
	}

	// Stage 2: title enrichment.
	if p.Enricher != nil {
		records = p.enrich(ctx, records)
		report.Enriched = countDOIs(records)
		if err := p.snapshot(export.FileCrossref, records); err != nil {
			return report, err
		}
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	// Stage 3: venue ranking and filters.
	if p.Ranker != nil {
		p.Ranker.Annotate(ctx, records)
		records = rankings.Filter(p.Filters, records)
		report.Ranked = len(records)
		if len(records) == 0 {
			p.Logger.Info().Msg("no records passed ranking filters, ending run")
			return report, nil
		}
		if err := p.snapshot(export.FileRankings, records); err != nil {
			return report, err
		}
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	// Stage 4: batch metadata.
	bySource := map[string]types.SourceRecord{}
	if p.Batch != nil {
		dois := make([]string, 0, len(records))
		for _, r := range records {
			if r.DOI != "" {
				dois = append(dois, r.DOI)
			}
		}
		var err error
		bySource, err = p.Batch.BatchLookup(ctx, dois)
		if err != nil {
			return report, err
		}
		report.Matched = len(bySource)
		if p.Exporter != nil {
			if err := p.Exporter.WriteSourceRecords(export.FileSemanticScholar, bySource); err != nil {
				return report, err
			}
		}
	}

	// Stage 5: fusion.
	unified := fuse.Fuse(records, bySource)
	report.Fused = len(unified)
	report.UnifiedRecords = unified
	if len(unified) == 0 {
		p.Logger.Info().Msg("no records with DOIs to fuse, ending run")
		return report, nil
	}
	if p.Exporter != nil {
		if err := p.Exporter.WriteUnified(export.FileUnified, unified); err != nil {
			return report, err
		}
	}

	// Stage 6: relevance classification.
	if p.Classifier == nil {
		report.RelevantRecords = unified
		return report, nil
	}
	verdicts, tokens := p.Classifier.Classify(ctx, unified)
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	report.Tokens = tokens
	report.Verdicts = verdicts
	for _, v := range verdicts {
		switch v.Label {
		case types.LabelRelevant:
			report.Relevant++
		case types.LabelIrrelevant:
			report.Irrelevant++
		default:
			report.Uncertain++
		}
	}
	if p.Exporter != nil {
		if err := p.Exporter.WriteVerdicts(export.FileVerdicts, verdicts); err != nil {
			return report, err
		}
	}

	// Stage 7: relevant extraction.
	report.RelevantRecords = extractRelevant(unified, verdicts)
	if p.Exporter != nil {
		if err := p.Exporter.WriteUnified(export.FileRelevant, report.RelevantRecords); err != nil {
			return report, err
		}
	}

	p.Logger.Info().
		Int("found", report.Found).
		Int("fused", report.Fused).
		Int("relevant", report.Relevant).
		Int("irrelevant", report.Irrelevant).
		Int("uncertain", report.Uncertain).
		Msg("run complete")
	return report, nil
}

// enrich applies title matches onto the records. Fields already present on
// a record are only filled, never overwritten, except the DOI and journal
// which enrichment owns.
func (p *Pipeline) enrich(ctx context.Context, records []types.Record) []types.Record {
	titles := make([]string, len(records))
	for i, r := range records {
		titles[i] = r.Title
	}

	matches := p.Enricher.EnrichTitles(ctx, titles)
	for i := range records {
		m, ok := matches[i].Get()
		if !ok {
			continue
		}
		records[i].DOI = m.DOI
		records[i].Journal = m.Journal
		if records[i].Abstract == "" {
			records[i].Abstract = m.Abstract
		}
		if records[i].PublicationDate == "" {
			records[i].PublicationDate = m.PublicationDate
		}
		if records[i].Year == "" {
			records[i].Year = m.Year
		}
	}
	return records
}

// extractRelevant joins relevant verdicts back onto unified records by
// lowercased DOI, preserving record order.
func extractRelevant(unified []types.UnifiedRecord, verdicts []types.Verdict) []types.UnifiedRecord {
	relevant := make(map[string]bool, len(verdicts))
	for _, v := range verdicts {
		if v.Label == types.LabelRelevant {
			relevant[strings.ToLower(v.ID)] = true
		}
	}

	var kept []types.UnifiedRecord
	for _, u := range unified {
		if relevant[strings.ToLower(u.DOI)] {
			kept = append(kept, u)
		}
	}
	return kept
}

func (p *Pipeline) snapshot(name string, records []types.Record) error {
	if p.Exporter == nil {
		return nil
	}
	return p.Exporter.WriteRecords(name, records)
}

func countDOIs(records []types.Record) int {
	n := 0
	for _, r := range records {
		if r.DOI != "" {
			n++
		}
	}
	return n
}
