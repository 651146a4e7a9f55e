// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/paperfuse/internal/httputil"
	"github.com/pdiddy/paperfuse/internal/lookup"
	"github.com/pdiddy/paperfuse/pkg/types"
)

// scholarDefaultBase is the Google Scholar root. Declared as a var so tests
// can substitute an httptest server; a configured mirror overrides it too.
var scholarDefaultBase = "https://scholar.google.com"

const resultsPerPage = 10

// yearPattern finds a plausible publication year in the byline.
var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// citedByPattern matches both the English and Chinese cited-by labels.
var citedByPattern = regexp.MustCompile(`(?:Cited by\s*|被引用\s*)(\d+)`)

// ScholarSource scrapes Google Scholar result pages.
type ScholarSource struct {
	Client *http.Client
	Config types.SearchConfig

	// Delay paces consecutive page fetches to avoid tripping detection.
	// Nil gets a 500-2000ms random wait; tests inject a no-op.
	Delay func(ctx context.Context) error
}

// Name returns the backend identifier.
func (s *ScholarSource) Name() string { return "gscholar" }

// Concurrency is 1: Scholar bans parallel scrapes quickly.
func (s *ScholarSource) Concurrency() int { return 1 }

// Search fetches and parses one result page. A CAPTCHA interstitial is a
// permanent failure; retrying would only dig the hole deeper.
func (s *ScholarSource) Search(ctx context.Context, query string, page int) ([]types.Record, error) {
	delay := s.Delay
	if delay == nil {
		delay = randomDelay
	}
	if err := delay(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL(query, page), nil)
	if err != nil {
		return nil, lookup.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", s.Config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if s.Config.CookieHeader != "" {
		req.Header.Set("Cookie", s.Config.CookieHeader)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scholar request: %w", err)
	}
	if err := httputil.CheckStatus(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing scholar page: %w", err)
	}

	if isCaptcha(doc) {
		return nil, lookup.Permanent(fmt.Errorf("CAPTCHA challenge on page %d", page))
	}

	return parseResults(doc), nil
}

// pageURL builds the search URL for a 1-indexed page.
func (s *ScholarSource) pageURL(query string, page int) string {
	base := scholarDefaultBase
	if s.Config.Mirror != "" {
		base = strings.TrimRight(s.Config.Mirror, "/")
	}

	sdt := s.Config.SourceType
	if sdt == "" {
		sdt = "0,5"
	}

	params := url.Values{
		"q":      {query},
		"hl":     {"en-US"}, // force English so byline parsing is stable
		"start":  {fmt.Sprintf("%d", (page-1)*resultsPerPage)},
		"as_sdt": {sdt},
	}
	if s.Config.YearLow > 0 {
		params.Set("as_ylo", fmt.Sprintf("%d", s.Config.YearLow))
	}
	return base + "/scholar?" + params.Encode()
}

func isCaptcha(doc *goquery.Document) bool {
	text := doc.Text()
	return strings.Contains(text, "Solving the above CAPTCHA") ||
		strings.Contains(text, "unusual traffic")
}

// parseResults extracts one Record per result block.
func parseResults(doc *goquery.Document) []types.Record {
	var records []types.Record

	doc.Find("div.gs_r.gs_or.gs_scl").Each(func(_ int, item *goquery.Selection) {
		var r types.Record

		titleLink := item.Find("h3.gs_rt a").First()
		if titleLink.Length() > 0 {
			r.Title = strings.TrimSpace(titleLink.Text())
			r.ArticleURL, _ = titleLink.Attr("href")
		} else {
			// Citation-only entries have a title but no link.
			r.Title = strings.TrimSpace(item.Find("h3.gs_rt").First().Text())
		}
		if r.Title == "" {
			return
		}

		parseByline(item.Find("div.gs_a").First().Text(), &r)
		r.Snippet = strings.TrimSpace(item.Find("div.gs_rs").First().Text())

		item.Find("div.gs_fl a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
			href, _ := link.Attr("href")
			if !strings.Contains(href, "cites=") {
				return true
			}
			if m := citedByPattern.FindStringSubmatch(link.Text()); m != nil {
				r.Citations = m[1]
				return false
			}
			return true
		})

		records = append(records, r)
	})

	return records
}

// parseByline splits the "authors - venue, year - publisher" line.
func parseByline(byline string, r *types.Record) {
	parts := strings.Split(byline, " - ")
	if len(parts) > 0 {
		r.Author = strings.TrimSpace(parts[0])
	}
	if len(parts) < 2 {
		return
	}

	venueYear := parts[1]
	loc := yearPattern.FindStringIndex(venueYear)
	if loc == nil {
		r.Venue = strings.TrimSpace(venueYear)
		return
	}
	r.Year = venueYear[loc[0]:loc[1]]
	r.Venue = strings.TrimRight(strings.TrimSpace(venueYear[:loc[0]]), ",")
}

func randomDelay(ctx context.Context) error {
	d := time.Duration(500+rand.Intn(1500)) * time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
