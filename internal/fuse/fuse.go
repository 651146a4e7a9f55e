// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fuse joins the base records with batch metadata into the unified
// dataset. See docs/ARCHITECTURE § Fusion.
package fuse

import (
	"regexp"
	"strings"

	"github.com/pdiddy/paperfuse/pkg/types"
)

// doiPattern matches normalized DOIs: "10.1145/1234567.1234568".
var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

// NormalizeDOI canonicalizes a DOI for joining: whitespace trimmed, resolver
// prefix stripped, lowercased. DOI matching is case-insensitive per the
// DOI handbook, so both join sides must normalize identically.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi.org/", "doi:"} {
		if rest, ok := cutPrefixFold(doi, prefix); ok {
			doi = rest
			break
		}
	}
	return strings.ToLower(doi)
}

// ValidDOI reports whether a normalized DOI has the registered-prefix shape.
func ValidDOI(doi string) bool {
	return doiPattern.MatchString(doi)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// Fuse joins base records with source metadata by normalized DOI. Base
// records without a DOI are dropped: there is nothing to join them on and
// every later stage is DOI-keyed. Output order follows input order, and the
// function is pure, so fusing twice gives the same rows.
//
// Field precedence where both sides supply a value: the source abstract
// wins over the scraped one, the full publication date wins over the bare
// year, the base article URL wins over the source landing page. The PDF
// link and summary only ever come from the source.
func Fuse(base []types.Record, bySource map[string]types.SourceRecord) []types.UnifiedRecord {
	normalized := make(map[string]types.SourceRecord, len(bySource))
	for doi, sr := range bySource {
		if key := NormalizeDOI(doi); key != "" {
			normalized[key] = sr
		}
	}

	unified := make([]types.UnifiedRecord, 0, len(base))
	for _, r := range base {
		doi := NormalizeDOI(r.DOI)
		if doi == "" {
			continue
		}

		u := types.UnifiedRecord{
			Title:        r.Title,
			Author:       r.Author,
			DOI:          doi,
			ArticleURL:   r.ArticleURL,
			Abstract:     r.Abstract,
			Journal:      r.Journal,
			ImpactFactor: r.Metrics.ImpactFactor,
			JCI:          r.Metrics.JCI,
			Partition:    r.Metrics.Partition,
		}

		u.Date = r.PublicationDate
		if u.Date == "" {
			u.Date = r.Year
		}

		if sr, ok := normalized[doi]; ok {
			if sr.Abstract != "" {
				u.Abstract = sr.Abstract
			}
			if u.ArticleURL == "" {
				u.ArticleURL = sr.URL
			}
			u.PDFURL = sr.PDFURL
			u.TLDR = sr.TLDR
		}

		unified = append(unified, u)
	}
	return unified
}
