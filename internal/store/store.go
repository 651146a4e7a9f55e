// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store archives completed runs in a SQLite database so past result
// sets stay queryable after the CSV folders are pruned.
// See docs/ARCHITECTURE § Run Archive.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paperfuse/pkg/types"
)

const dbFile = "paperfuse.db"

// Store manages the run archive database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at dir/paperfuse.db, creating the
// schema if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			keyword TEXT NOT NULL,
			source TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			records INTEGER NOT NULL,
			relevant INTEGER NOT NULL,
			prompt_tokens INTEGER NOT NULL,
			completion_tokens INTEGER NOT NULL,
			total_tokens INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS unified_records (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			doi TEXT NOT NULL,
			title TEXT,
			author TEXT,
			date TEXT,
			article_url TEXT,
			pdf_url TEXT,
			abstract TEXT,
			tldr TEXT,
			journal TEXT,
			impact_factor TEXT,
			jci TEXT,
			partition_rank TEXT,
			PRIMARY KEY (run_id, doi)
		)`,
		`CREATE TABLE IF NOT EXISTS verdicts (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			doi TEXT NOT NULL,
			title TEXT,
			label TEXT NOT NULL,
			confidence REAL,
			evidence TEXT,
			reason TEXT,
			PRIMARY KEY (run_id, doi)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_label ON verdicts(label)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RunMeta is one archived run's header row.
type RunMeta struct {
	ID         int64
	Keyword    string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Records    int
	Relevant   int
	Tokens     types.TokenUsage
}

// SaveRun archives one completed run atomically and returns its ID.
func (s *Store) SaveRun(ctx context.Context, meta RunMeta, unified []types.UnifiedRecord, verdicts []types.Verdict) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	relevant := 0
	for _, v := range verdicts {
		if v.Label == types.LabelRelevant {
			relevant++
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (keyword, source, started_at, finished_at, records, relevant,
			prompt_tokens, completion_tokens, total_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.Keyword, meta.Source,
		meta.StartedAt.UTC().Format(time.RFC3339),
		meta.FinishedAt.UTC().Format(time.RFC3339),
		len(unified), relevant,
		meta.Tokens.PromptTokens, meta.Tokens.CompletionTokens, meta.Tokens.TotalTokens,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO unified_records
			(run_id, doi, title, author, date, article_url, pdf_url, abstract,
			 tldr, journal, impact_factor, jci, partition_rank)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing record insert: %w", err)
	}
	defer recStmt.Close()

	for _, u := range unified {
		if _, err := recStmt.ExecContext(ctx,
			runID, u.DOI, u.Title, u.Author, u.Date, u.ArticleURL, u.PDFURL,
			u.Abstract, u.TLDR, u.Journal, u.ImpactFactor, u.JCI, u.Partition,
		); err != nil {
			return 0, fmt.Errorf("inserting record %s: %w", u.DOI, err)
		}
	}

	vStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO verdicts (run_id, doi, title, label, confidence, evidence, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing verdict insert: %w", err)
	}
	defer vStmt.Close()

	for _, v := range verdicts {
		if _, err := vStmt.ExecContext(ctx,
			runID, v.ID, v.Title, string(v.Label), v.Confidence, v.Evidence, v.Reason,
		); err != nil {
			return 0, fmt.Errorf("inserting verdict %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing run: %w", err)
	}
	return runID, nil
}

// ListRuns returns archived run headers, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, keyword, source, started_at, finished_at, records, relevant,
			prompt_tokens, completion_tokens, total_tokens
		 FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunMeta
	for rows.Next() {
		var m RunMeta
		var started, finished string
		if err := rows.Scan(&m.ID, &m.Keyword, &m.Source, &started, &finished,
			&m.Records, &m.Relevant,
			&m.Tokens.PromptTokens, &m.Tokens.CompletionTokens, &m.Tokens.TotalTokens,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		m.StartedAt, _ = time.Parse(time.RFC3339, started)
		m.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		runs = append(runs, m)
	}
	return runs, rows.Err()
}

// GetRun loads one archived run's records and verdicts.
func (s *Store) GetRun(ctx context.Context, runID int64) ([]types.UnifiedRecord, []types.Verdict, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return nil, nil, fmt.Errorf("checking run: %w", err)
	}
	if exists == 0 {
		return nil, nil, fmt.Errorf("run %d not found", runID)
	}

	recRows, err := s.db.QueryContext(ctx,
		`SELECT doi, title, author, date, article_url, pdf_url, abstract,
			tldr, journal, impact_factor, jci, partition_rank
		 FROM unified_records WHERE run_id = ? ORDER BY doi`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("querying records: %w", err)
	}
	defer recRows.Close()

	var unified []types.UnifiedRecord
	for recRows.Next() {
		var u types.UnifiedRecord
		if err := recRows.Scan(&u.DOI, &u.Title, &u.Author, &u.Date,
			&u.ArticleURL, &u.PDFURL, &u.Abstract, &u.TLDR, &u.Journal,
			&u.ImpactFactor, &u.JCI, &u.Partition,
		); err != nil {
			return nil, nil, fmt.Errorf("scanning record: %w", err)
		}
		unified = append(unified, u)
	}
	if err := recRows.Err(); err != nil {
		return nil, nil, err
	}

	vRows, err := s.db.QueryContext(ctx,
		`SELECT doi, title, label, confidence, evidence, reason
		 FROM verdicts WHERE run_id = ? ORDER BY doi`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("querying verdicts: %w", err)
	}
	defer vRows.Close()

	var verdicts []types.Verdict
	for vRows.Next() {
		var v types.Verdict
		var label string
		if err := vRows.Scan(&v.ID, &v.Title, &label, &v.Confidence, &v.Evidence, &v.Reason); err != nil {
			return nil, nil, fmt.Errorf("scanning verdict: %w", err)
		}
		v.Label = types.VerdictLabel(label)
		verdicts = append(verdicts, v)
	}
	return unified, verdicts, vRows.Err()
}
