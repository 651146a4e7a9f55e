// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes per-stage CSV snapshots and the run summary into a
// timestamped run folder. See docs/ARCHITECTURE § Outputs.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paperfuse/pkg/types"
)

// Stage file names, numbered in pipeline order.
const (
	FileSearch          = "1_search.csv"
	FileCrossref        = "2_crossref.csv"
	FileRankings        = "3_rankings.csv"
	FileSemanticScholar = "4_semanticscholar.csv"
	FileUnified         = "5_unified.csv"
	FileVerdicts        = "6_verdicts.csv"
	FileRelevant        = "7_relevant.csv"
	FileSummary         = "summary.yaml"
)

// Run is one pipeline run's output folder.
type Run struct {
	// Dir is the run folder, <base>/<timestamp>_<keyword-slug>.
	Dir string
}

// NewRun creates the timestamped run folder under baseDir.
func NewRun(baseDir, keyword string, now time.Time) (*Run, error) {
	dir := filepath.Join(baseDir, now.Format("20060102_150405")+"_"+Slug(keyword))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run folder: %w", err)
	}
	return &Run{Dir: dir}, nil
}

// Slug reduces a keyword to a filesystem-safe folder name stem: only
// alphanumerics, dashes and underscores survive, with spaces collapsed to
// underscores.
func Slug(keyword string) string {
	var b strings.Builder
	for _, c := range keyword {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == ' ', c == '-', c == '_':
			b.WriteRune(c)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
}

// WriteRecords writes a record snapshot. An empty slice writes nothing: an
// absent file reads as "stage produced no rows", not as an empty table.
func (r *Run) WriteRecords(name string, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{
		"title", "author", "year", "publication_date", "venue", "journal",
		"doi", "article_url", "citations", "snippet", "abstract",
		"impact_factor", "jci", "partition",
	})
	for _, rec := range records {
		rows = append(rows, []string{
			rec.Title, rec.Author, rec.Year, rec.PublicationDate, rec.Venue,
			rec.Journal, rec.DOI, rec.ArticleURL, rec.Citations, rec.Snippet,
			rec.Abstract, rec.Metrics.ImpactFactor, rec.Metrics.JCI,
			rec.Metrics.Partition,
		})
	}
	return r.writeCSV(name, rows)
}

// WriteSourceRecords writes the batch metadata snapshot.
func (r *Run) WriteSourceRecords(name string, records map[string]types.SourceRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{
		"doi", "paper_id", "title", "abstract", "tldr", "url",
		"is_open_access", "pdf_url", "embedding",
	})
	for _, doi := range sortedKeys(records) {
		sr := records[doi]
		rows = append(rows, []string{
			doi, sr.PaperID, sr.Title, sr.Abstract, sr.TLDR, sr.URL,
			strconv.FormatBool(sr.IsOpenAccess), sr.PDFURL, sr.Embedding,
		})
	}
	return r.writeCSV(name, rows)
}

// WriteUnified writes a unified dataset snapshot.
func (r *Run) WriteUnified(name string, records []types.UnifiedRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{
		"title", "author", "date", "doi", "article_url", "pdf_url",
		"abstract", "tldr", "journal", "impact_factor", "jci", "partition",
	})
	for _, u := range records {
		rows = append(rows, []string{
			u.Title, u.Author, u.Date, u.DOI, u.ArticleURL, u.PDFURL,
			u.Abstract, u.TLDR, u.Journal, u.ImpactFactor, u.JCI, u.Partition,
		})
	}
	return r.writeCSV(name, rows)
}

// WriteVerdicts writes the classification snapshot.
func (r *Run) WriteVerdicts(name string, verdicts []types.Verdict) error {
	if len(verdicts) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(verdicts)+1)
	rows = append(rows, []string{"id", "title", "label", "confidence", "evidence", "reason"})
	for _, v := range verdicts {
		rows = append(rows, []string{
			v.ID, v.Title, string(v.Label),
			strconv.FormatFloat(v.Confidence, 'f', -1, 64),
			v.Evidence, v.Reason,
		})
	}
	return r.writeCSV(name, rows)
}

// Summary is the run-level accounting written alongside the CSVs.
type Summary struct {
	Keyword     string           `yaml:"keyword"`
	Source      string           `yaml:"source"`
	StartedAt   time.Time        `yaml:"started_at"`
	FinishedAt  time.Time        `yaml:"finished_at"`
	StageCounts map[string]int   `yaml:"stage_counts"`
	TokenUsage  types.TokenUsage `yaml:"token_usage"`
}

// WriteSummary writes the run summary YAML.
func (r *Run) WriteSummary(s Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	return os.WriteFile(filepath.Join(r.Dir, FileSummary), data, 0o644)
}

func (r *Run) writeCSV(name string, rows [][]string) error {
	f, err := os.Create(filepath.Join(r.Dir, name))
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return f.Close()
}

// sortedKeys orders map keys so runs are diffable.
func sortedKeys(m map[string]types.SourceRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
