// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package crossref resolves record titles to DOIs and richer metadata via
// the Crossref works API. See docs/ARCHITECTURE § Enrichment.
package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperfuse/internal/httputil"
	"github.com/pdiddy/paperfuse/internal/lookup"
	"github.com/pdiddy/paperfuse/pkg/types"
)

// crossrefAPIBase is the works search endpoint. Tests substitute an
// httptest server.
var crossrefAPIBase = "https://api.crossref.org/works"

const defaultWorkers = 3

// Match is the metadata Crossref returned for one title query.
type Match struct {
	DOI             string
	Title           string
	Journal         string
	Abstract        string
	PublicationDate string
	Year            string
}

// Client enriches titles concurrently through the works API.
type Client struct {
	HTTP   *http.Client
	Config types.EnrichConfig
	Logger zerolog.Logger

	// Sleep overrides retry waits in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// EnrichTitles looks up each title and returns matches aligned one-to-one
// with the input: result i answers titles[i]. A blank title never touches
// the network and a failed lookup leaves its slot empty; the surviving
// titles are unaffected.
func (c *Client) EnrichTitles(ctx context.Context, titles []string) []lookup.Option[Match] {
	runner := &lookup.Runner[string, Match]{
		Workers:    defaultWorkers,
		MaxRetries: c.Config.MaxRetries,
		Sleep:      c.Sleep,
		Logger:     c.Logger,
	}
	if c.Config.Workers > 0 {
		runner.Workers = c.Config.Workers
	}

	return runner.Run(ctx, titles, func(ctx context.Context, title string) (Match, error) {
		if strings.TrimSpace(title) == "" {
			return Match{}, lookup.Permanent(fmt.Errorf("blank title"))
		}
		return c.lookupTitle(ctx, title)
	})
}

type worksResponse struct {
	Message struct {
		Items []workItem `json:"items"`
	} `json:"message"`
}

type workItem struct {
	DOI            string   `json:"DOI"`
	Title          []string `json:"title"`
	ContainerTitle []string `json:"container-title"`
	Abstract       string   `json:"abstract"`
	Issued         struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
}

// lookupTitle asks for the single best match for a title.
func (c *Client) lookupTitle(ctx context.Context, title string) (Match, error) {
	params := url.Values{
		"query.title": {title},
		"rows":        {"1"},
		"select":      {"DOI,title,container-title,abstract,issued"},
	}
	if c.Config.Mailto != "" {
		params.Set("mailto", c.Config.Mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, crossrefAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return Match{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Match{}, fmt.Errorf("crossref request: %w", err)
	}
	if err := httputil.CheckStatus(resp); err != nil {
		return Match{}, err
	}
	defer resp.Body.Close()

	var body worksResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Match{}, fmt.Errorf("decoding crossref response: %w", err)
	}

	if len(body.Message.Items) == 0 {
		return Match{}, lookup.Permanent(fmt.Errorf("no match for title"))
	}

	item := body.Message.Items[0]
	m := Match{
		DOI:      item.DOI,
		Abstract: stripTags(item.Abstract),
	}
	if len(item.Title) > 0 {
		m.Title = item.Title[0]
	}
	if len(item.ContainerTitle) > 0 {
		m.Journal = item.ContainerTitle[0]
	}
	m.PublicationDate, m.Year = formatIssued(item.Issued.DateParts)
	return m, nil
}

// formatIssued renders Crossref date-parts as an ISO date, padding missing
// month and day with "01", plus the bare year.
func formatIssued(dateParts [][]int) (date, year string) {
	if len(dateParts) == 0 || len(dateParts[0]) == 0 {
		return "", ""
	}
	parts := dateParts[0]
	y, m, d := parts[0], 1, 1
	if len(parts) > 1 {
		m = parts[1]
	}
	if len(parts) > 2 {
		d = parts[2]
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d), fmt.Sprintf("%d", y)
}

// tagPattern strips the JATS markup Crossref embeds in abstracts.
var tagPattern = regexp.MustCompile(`<[^>]+>`)

func stripTags(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}
