// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package semanticscholar looks up paper metadata in bulk through the
// Semantic Scholar graph API. See docs/ARCHITECTURE § Batch Metadata.
package semanticscholar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperfuse/internal/httputil"
	"github.com/pdiddy/paperfuse/internal/lookup"
	"github.com/pdiddy/paperfuse/pkg/types"
)

// semanticScholarAPIBase is the graph API root. Tests substitute an
// httptest server.
var semanticScholarAPIBase = "https://api.semanticscholar.org/graph/v1"

const (
	// defaultMaxBatchSize is the API's hard cap on identifiers per request.
	defaultMaxBatchSize = 500

	// defaultBatchDelay matches the unauthenticated 1 req/s tier.
	defaultBatchDelay = time.Second
)

// batchFields lists the response fields requested per paper.
const batchFields = "title,abstract,url,isOpenAccess,openAccessPdf,externalIds,tldr,embedding.specter_v2"

// Client fetches paper metadata by DOI in batches.
type Client struct {
	HTTP   *http.Client
	Config types.BatchConfig
	Logger zerolog.Logger

	// Sleep overrides the inter-batch pause in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// BatchLookup resolves DOIs to source records, keyed by the DOI the API
// reports. Empty input DOIs are ignored. DOIs are split into balanced
// chunks under the batch cap and fetched sequentially with a pause between
// requests; a failed batch is logged and skipped, so its papers are simply
// absent from the result rather than sinking the whole lookup.
func (c *Client) BatchLookup(ctx context.Context, dois []string) (map[string]types.SourceRecord, error) {
	valid := make([]string, 0, len(dois))
	for _, d := range dois {
		if strings.TrimSpace(d) != "" {
			valid = append(valid, d)
		}
	}
	if len(valid) == 0 {
		return map[string]types.SourceRecord{}, nil
	}

	maxBatch := c.Config.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatchSize
	}
	delay := c.Config.BatchDelay
	if delay <= 0 {
		delay = defaultBatchDelay
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	chunks := lookup.Chunk(valid, maxBatch)
	c.Logger.Info().
		Int("dois", len(valid)).
		Int("batches", len(chunks)).
		Msg("starting batch metadata lookup")

	results := make(map[string]types.SourceRecord)
	for i, chunk := range chunks {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				return results, err
			}
		}

		papers, err := c.fetchBatch(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			c.Logger.Warn().Int("batch", i+1).Err(err).Msg("batch failed, skipping")
			continue
		}
		for _, p := range papers {
			if p.DOI != "" {
				results[p.DOI] = p
			}
		}
	}

	c.Logger.Info().Int("found", len(results)).Msg("batch metadata lookup complete")
	return results, nil
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

type ssPaper struct {
	PaperID  string  `json:"paperId"`
	Title    string  `json:"title"`
	Abstract string  `json:"abstract"`
	URL      string  `json:"url"`
	IsOA     bool    `json:"isOpenAccess"`
	TLDR     *struct {
		Text string `json:"text"`
	} `json:"tldr"`
	OpenAccessPDF *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
	ExternalIDs *struct {
		DOI string `json:"DOI"`
	} `json:"externalIds"`
	Embedding *struct {
		Vector []float64 `json:"vector"`
	} `json:"embedding"`
}

// fetchBatch issues one POST paper/batch request. The response array is
// position-aligned with the request and uses null for unknown papers.
func (c *Client) fetchBatch(ctx context.Context, dois []string) ([]types.SourceRecord, error) {
	ids := make([]string, len(dois))
	for i, d := range dois {
		ids[i] = "DOI:" + d
	}

	payload, err := json.Marshal(batchRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("encoding batch request: %w", err)
	}

	endpoint := semanticScholarAPIBase + "/paper/batch?fields=" + batchFields
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Config.APIKey != "" {
		req.Header.Set("x-api-key", c.Config.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("batch request: %w", err)
	}
	if err := httputil.CheckStatus(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var papers []*ssPaper
	if err := json.NewDecoder(resp.Body).Decode(&papers); err != nil {
		return nil, fmt.Errorf("decoding batch response: %w", err)
	}

	records := make([]types.SourceRecord, 0, len(papers))
	for _, p := range papers {
		if p == nil {
			continue
		}
		records = append(records, p.toRecord())
	}
	return records, nil
}

func (p *ssPaper) toRecord() types.SourceRecord {
	r := types.SourceRecord{
		PaperID:      p.PaperID,
		Title:        p.Title,
		Abstract:     p.Abstract,
		URL:          p.URL,
		IsOpenAccess: p.IsOA,
	}
	if p.ExternalIDs != nil {
		r.DOI = p.ExternalIDs.DOI
	}
	if p.TLDR != nil {
		r.TLDR = p.TLDR.Text
	}
	if p.OpenAccessPDF != nil {
		r.PDFURL = p.OpenAccessPDF.URL
	}
	if p.Embedding != nil {
		r.Embedding = formatEmbedding(p.Embedding.Vector)
	}
	return r
}

// formatEmbedding serializes a vector as comma-separated fixed-precision
// decimals, a CSV-safe portable form.
func formatEmbedding(vector []float64) string {
	if len(vector) == 0 {
		return ""
	}
	parts := make([]string, len(vector))
	for i, f := range vector {
		parts[i] = fmt.Sprintf("%.6f", f)
	}
	return strings.Join(parts, ",")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
