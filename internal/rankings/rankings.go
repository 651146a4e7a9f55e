// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rankings attaches venue-level ranking metrics to records via the
// EasyScholar publication rank API, and applies metric filters.
// See docs/ARCHITECTURE § Ranking.
package rankings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperfuse/internal/lookup"
	"github.com/pdiddy/paperfuse/pkg/types"
)

// easyScholarAPIBase is the publication rank endpoint. Tests substitute an
// httptest server.
var easyScholarAPIBase = "https://www.easyscholar.cc/open/getPublicationRank"

// defaultMinInterval keeps the request rate safely under the API's
// 2-requests-per-second cap.
const defaultMinInterval = 600 * time.Millisecond

// Client queries venue rankings with per-run memoization and request pacing.
// Distinct venue names cost at most one network call each; a venue the API
// does not know is remembered as absent. A failed request is not cached, so
// a later record naming the same venue gets a fresh attempt.
type Client struct {
	http   *http.Client
	config types.RankingConfig
	logger zerolog.Logger

	cache *lookup.Cache[string, types.RankingMetrics]
	gate  *lookup.Gate
}

// NewClient builds a ranking client. A non-positive MinInterval falls back
// to the default pacing.
func NewClient(httpClient *http.Client, cfg types.RankingConfig, logger zerolog.Logger) *Client {
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = defaultMinInterval
	}
	return &Client{
		http:   httpClient,
		config: cfg,
		logger: logger,
		cache:  lookup.NewCache[string, types.RankingMetrics](),
		gate:   lookup.NewGate(interval),
	}
}

// Lookup returns the metrics for a venue, or None when the venue is unknown
// or the lookup failed. The venue key is whitespace-trimmed but otherwise
// used as given; the API is case-sensitive.
func (c *Client) Lookup(ctx context.Context, venue string) lookup.Option[types.RankingMetrics] {
	venue = strings.TrimSpace(venue)
	if venue == "" {
		return lookup.None[types.RankingMetrics]()
	}

	if cached, seen := c.cache.Get(venue); seen {
		return cached
	}

	if err := c.gate.Wait(ctx); err != nil {
		return lookup.None[types.RankingMetrics]()
	}

	metrics, found, err := c.fetch(ctx, venue)
	if err != nil {
		c.logger.Warn().Str("venue", venue).Err(err).Msg("ranking lookup failed")
		return lookup.None[types.RankingMetrics]()
	}

	entry := lookup.None[types.RankingMetrics]()
	if found {
		entry = lookup.Some(metrics)
	}
	c.cache.Put(venue, entry)
	return entry
}

// Annotate fills Metrics on each record in place, keyed by Journal with
// Venue as the fallback. Records are processed in order; pacing happens
// inside Lookup.
func (c *Client) Annotate(ctx context.Context, records []types.Record) {
	for i := range records {
		key := records[i].Journal
		if key == "" {
			key = records[i].Venue
		}
		if m, ok := c.Lookup(ctx, key).Get(); ok {
			records[i].Metrics = m
		}
	}
}

type rankResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		OfficialRank struct {
			Select map[string]json.RawMessage `json:"select"`
			All    map[string]json.RawMessage `json:"all"`
		} `json:"officialRank"`
	} `json:"data"`
}

func (c *Client) fetch(ctx context.Context, venue string) (types.RankingMetrics, bool, error) {
	params := url.Values{
		"secretKey":       {c.config.APIKey},
		"publicationName": {venue},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, easyScholarAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return types.RankingMetrics{}, false, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return types.RankingMetrics{}, false, fmt.Errorf("easyscholar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.RankingMetrics{}, false, fmt.Errorf("HTTP %d from easyscholar", resp.StatusCode)
	}

	var body rankResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return types.RankingMetrics{}, false, fmt.Errorf("decoding easyscholar response: %w", err)
	}

	// An in-band non-200 code means the venue is unknown: a definitive
	// answer worth remembering, not a failure.
	if body.Code != http.StatusOK {
		c.logger.Debug().Str("venue", venue).Str("msg", body.Msg).Msg("venue not ranked")
		return types.RankingMetrics{}, false, nil
	}

	rank := body.Data.OfficialRank
	metric := func(key string) string {
		if v, ok := rank.Select[key]; ok {
			return rawToString(v)
		}
		return rawToString(rank.All[key])
	}

	return types.RankingMetrics{
		ImpactFactor:  metric("sciif"),
		JCI:           metric("jci"),
		Partition:     metric("sci"),
		PartitionTop:  metric("sciUpTop"),
		PartitionBase: metric("sciBase"),
		PartitionUp:   metric("sciUp"),
	}, true, nil
}

// rawToString renders a JSON scalar as text, keeping the source's own
// number formatting.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}
