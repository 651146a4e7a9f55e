// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries a search source page by page and returns candidate
// records in stable page order.
// See docs/ARCHITECTURE § Search.
package search

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperfuse/internal/lookup"
	"github.com/pdiddy/paperfuse/pkg/types"
)

// Source fetches one page of search results. Each backend (Google Scholar,
// OpenAlex) implements this per the Strategy pattern.
type Source interface {
	Name() string

	// Concurrency is the page-fetch parallelism the source tolerates.
	// Scraped sources return 1; polite-pool APIs allow more.
	Concurrency() int

	// Search returns the records on one 1-indexed result page. An empty
	// page is not an error.
	Search(ctx context.Context, query string, page int) ([]types.Record, error)
}

// Output holds the concatenated results and per-page statistics.
type Output struct {
	Records     []types.Record
	PagesOK     int
	PagesFailed int
}

// Run fetches the requested pages from src and concatenates the results in
// page order, not completion order. A page that fails after retries is
// dropped; the remaining pages still contribute, so page 1 and 3 surviving
// a failed page 2 yields exactly pages 1 then 3.
func Run(ctx context.Context, src Source, query string, pages []int, logger zerolog.Logger) Output {
	runner := &lookup.Runner[int, []types.Record]{
		Workers: src.Concurrency(),
		Logger:  logger.With().Str("source", src.Name()).Logger(),
	}

	perPage := runner.Run(ctx, pages, func(ctx context.Context, page int) ([]types.Record, error) {
		records, err := src.Search(ctx, query, page)
		if err != nil {
			return nil, err
		}
		return records, nil
	})

	var out Output
	for i, res := range perPage {
		records, ok := res.Get()
		if !ok {
			out.PagesFailed++
			logger.Warn().Str("source", src.Name()).Int("page", pages[i]).Msg("page dropped")
			continue
		}
		out.PagesOK++
		out.Records = append(out.Records, records...)
	}

	logger.Info().
		Str("source", src.Name()).
		Int("pages_ok", out.PagesOK).
		Int("pages_failed", out.PagesFailed).
		Int("records", len(out.Records)).
		Msg("search complete")
	return out
}
