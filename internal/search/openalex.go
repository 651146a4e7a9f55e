// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pdiddy/paperfuse/internal/httputil"
	"github.com/pdiddy/paperfuse/pkg/types"
)

// openAlexAPIBase points at the OpenAlex works endpoint. Tests substitute an
// httptest server.
var openAlexAPIBase = "https://api.openalex.org/works"

const openAlexPerPage = 200

// OpenAlexSource queries the OpenAlex works API. With a mailto address the
// request lands in the polite pool, which tolerates parallel page fetches.
type OpenAlexSource struct {
	Client *http.Client
	Config types.SearchConfig
}

// Name returns the backend identifier.
func (s *OpenAlexSource) Name() string { return "openalex" }

// Concurrency allows parallel page fetches; the polite pool permits it.
func (s *OpenAlexSource) Concurrency() int { return 5 }

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	Title           string           `json:"title"`
	PublicationYear int              `json:"publication_year"`
	PublicationDate string           `json:"publication_date"`
	DOI             string           `json:"doi"`
	CitedByCount    int              `json:"cited_by_count"`
	Authorships     []openAlexAuthor `json:"authorships"`
	PrimaryLocation *openAlexLoc     `json:"primary_location"`
	BestOALocation  *openAlexLoc     `json:"best_oa_location"`
	AbstractIndex   map[string][]int `json:"abstract_inverted_index"`
}

type openAlexAuthor struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type openAlexLoc struct {
	LandingPageURL string `json:"landing_page_url"`
	PDFURL         string `json:"pdf_url"`
	Source         *struct {
		DisplayName string `json:"display_name"`
	} `json:"source"`
}

// Search fetches one page of works matching the query.
func (s *OpenAlexSource) Search(ctx context.Context, query string, page int) ([]types.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL(query, page), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.Config.UserAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openalex request: %w", err)
	}
	if err := httputil.CheckStatus(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding openalex response: %w", err)
	}

	records := make([]types.Record, 0, len(body.Results))
	for _, w := range body.Results {
		if w.Title == "" {
			continue
		}
		records = append(records, w.toRecord())
	}
	return records, nil
}

func (s *OpenAlexSource) pageURL(query string, page int) string {
	filters := []string{"type:article"}
	if s.Config.YearLow > 0 {
		filters = append(filters, fmt.Sprintf("publication_year:>%d", s.Config.YearLow-1))
	}

	params := url.Values{
		"search":   {query},
		"filter":   {strings.Join(filters, ",")},
		"page":     {fmt.Sprintf("%d", page)},
		"per-page": {fmt.Sprintf("%d", openAlexPerPage)},
		"select": {strings.Join([]string{
			"title", "publication_year", "publication_date", "doi",
			"cited_by_count", "authorships", "primary_location",
			"best_oa_location", "abstract_inverted_index",
		}, ",")},
	}
	if s.Config.OpenAlexEmail != "" {
		params.Set("mailto", s.Config.OpenAlexEmail)
	}
	return openAlexAPIBase + "?" + params.Encode()
}

func (w openAlexWork) toRecord() types.Record {
	r := types.Record{
		Title:           w.Title,
		PublicationDate: w.PublicationDate,
		DOI:             strings.TrimPrefix(w.DOI, "https://doi.org/"),
		Abstract:        reconstructAbstract(w.AbstractIndex),
	}
	if w.PublicationYear > 0 {
		r.Year = fmt.Sprintf("%d", w.PublicationYear)
	}
	if w.CitedByCount > 0 {
		r.Citations = fmt.Sprintf("%d", w.CitedByCount)
	}

	names := make([]string, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			names = append(names, a.Author.DisplayName)
		}
	}
	r.Author = strings.Join(names, ", ")

	if loc := w.PrimaryLocation; loc != nil {
		r.ArticleURL = loc.LandingPageURL
		if loc.Source != nil {
			r.Venue = loc.Source.DisplayName
			r.Journal = loc.Source.DisplayName
		}
	}
	// Prefer an open-access copy for the link when the primary location
	// has none.
	if oa := w.BestOALocation; oa != nil && r.ArticleURL == "" {
		if oa.PDFURL != "" {
			r.ArticleURL = oa.PDFURL
		} else {
			r.ArticleURL = oa.LandingPageURL
		}
	}
	return r
}

// reconstructAbstract rebuilds the abstract text from OpenAlex's inverted
// index, which maps each word to the positions it occupies.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var placed []posWord
	for word, positions := range index {
		for _, p := range positions {
			placed = append(placed, posWord{pos: p, word: word})
		}
	}
	sort.Slice(placed, func(i, j int) bool { return placed[i].pos < placed[j].pos })

	words := make([]string, len(placed))
	for i, pw := range placed {
		words[i] = pw.word
	}
	return strings.Join(words, " ")
}
