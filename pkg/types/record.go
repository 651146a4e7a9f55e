// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paperfuse pipeline.
// See docs/ARCHITECTURE.md § Pipeline Interface, § Data Structures.
package types

// Record is one candidate work travelling through the pipeline. Fields
// accumulate as stages run: the search stage fills the bibliographic core,
// title enrichment resolves the DOI, the ranking stage attaches venue
// metrics. Numeric fields are kept as strings to preserve source formatting.
type Record struct {
	// Title is the work title as returned by the search source.
	Title string `json:"title" yaml:"title"`

	// Author lists the authors as a single comma-separated string.
	Author string `json:"author" yaml:"author"`

	// Year is the bare publication year (e.g. "2023").
	Year string `json:"year" yaml:"year"`

	// PublicationDate is the full ISO date when a source supplies one.
	PublicationDate string `json:"publication_date,omitempty" yaml:"publication_date,omitempty"`

	// Venue is the journal or conference name as scraped.
	Venue string `json:"venue" yaml:"venue"`

	// Journal is the canonical journal name from enrichment; used as the
	// ranking lookup key. May differ from Venue.
	Journal string `json:"journal,omitempty" yaml:"journal,omitempty"`

	// ArticleURL is the landing page for the work.
	ArticleURL string `json:"article_url" yaml:"article_url"`

	// Citations is the citation count as reported by the source.
	Citations string `json:"citations,omitempty" yaml:"citations,omitempty"`

	// Snippet is the result-page text excerpt.
	Snippet string `json:"snippet,omitempty" yaml:"snippet,omitempty"`

	// DOI is empty until enrichment resolves it. Once set it is the join
	// key for every later stage; records without one are excluded from
	// DOI-keyed joins.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Abstract is the abstract text from enrichment (HTML stripped).
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Metrics holds venue ranking metrics once the ranking stage has run.
	Metrics RankingMetrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// RankingMetrics holds venue-level ranking data. All fields are optional
// strings exactly as supplied by the ranking source; absent metrics stay
// empty rather than zero.
type RankingMetrics struct {
	// ImpactFactor is the journal impact factor (e.g. "5.62").
	ImpactFactor string `json:"impact_factor,omitempty" yaml:"impact_factor,omitempty"`

	// JCI is the Journal Citation Indicator.
	JCI string `json:"jci,omitempty" yaml:"jci,omitempty"`

	// Partition is the SCI quartile partition (e.g. "Q1").
	Partition string `json:"partition,omitempty" yaml:"partition,omitempty"`

	// PartitionTop, PartitionBase and PartitionUp are the CAS partition
	// variants reported alongside the quartile.
	PartitionTop  string `json:"partition_top,omitempty" yaml:"partition_top,omitempty"`
	PartitionBase string `json:"partition_base,omitempty" yaml:"partition_base,omitempty"`
	PartitionUp   string `json:"partition_up,omitempty" yaml:"partition_up,omitempty"`
}

// IsZero reports whether no metric is set.
func (m RankingMetrics) IsZero() bool {
	return m == RankingMetrics{}
}

// SourceRecord is the per-paper payload returned by the batch metadata
// source. Absent fields stay empty; the fusion stage decides precedence.
type SourceRecord struct {
	PaperID  string `json:"paper_id" yaml:"paper_id"`
	Title    string `json:"title" yaml:"title"`
	DOI      string `json:"doi" yaml:"doi"`
	Abstract string `json:"abstract" yaml:"abstract"`

	// TLDR is the source's machine-generated one-sentence summary.
	TLDR string `json:"tldr,omitempty" yaml:"tldr,omitempty"`

	// URL is the source's landing page, used as an article URL fallback.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// IsOpenAccess and PDFURL describe the best open-access copy.
	IsOpenAccess bool   `json:"is_open_access" yaml:"is_open_access"`
	PDFURL       string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`

	// Embedding is the paper embedding serialized as comma-separated
	// fixed-precision decimals for portability.
	Embedding string `json:"embedding,omitempty" yaml:"embedding,omitempty"`
}

// UnifiedRecord is one row of the fused dataset: the base record joined with
// the batch metadata source by normalized DOI, field by field.
type UnifiedRecord struct {
	Title       string `json:"title" yaml:"title"`
	Author      string `json:"author" yaml:"author"`
	Date        string `json:"date" yaml:"date"`
	DOI         string `json:"doi" yaml:"doi"`
	ArticleURL  string `json:"article_url" yaml:"article_url"`
	PDFURL      string `json:"pdf_url" yaml:"pdf_url"`
	Abstract    string `json:"abstract" yaml:"abstract"`
	TLDR        string `json:"tldr" yaml:"tldr"`
	Journal     string `json:"journal" yaml:"journal"`
	ImpactFactor string `json:"impact_factor" yaml:"impact_factor"`
	JCI         string `json:"jci" yaml:"jci"`
	Partition   string `json:"partition" yaml:"partition"`
}

// VerdictLabel is the closed set of relevance labels. Anything a
// classification source returns outside this set is treated as uncertain.
type VerdictLabel string

const (
	LabelRelevant   VerdictLabel = "relevant"
	LabelIrrelevant VerdictLabel = "irrelevant"
	LabelUncertain  VerdictLabel = "uncertain"
)

// Verdict is the relevance classification for one unified record. Exactly
// one verdict exists per classified record; failures surface as uncertain
// verdicts carrying the failure as the reason, never as dropped records.
type Verdict struct {
	// ID is the record's DOI.
	ID         string       `json:"id" yaml:"id"`
	Title      string       `json:"title" yaml:"title"`
	Label      VerdictLabel `json:"label" yaml:"label"`
	Confidence float64      `json:"confidence" yaml:"confidence"`

	// Evidence is comma-joined supporting phrases, flattened for CSV.
	Evidence string `json:"evidence" yaml:"evidence"`
	Reason   string `json:"reason" yaml:"reason"`
}

// TokenUsage counts language-model tokens consumed by a run. Addition is
// associative and commutative so concurrent workers can report in any order.
type TokenUsage struct {
	PromptTokens     uint64 `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens uint64 `json:"completion_tokens" yaml:"completion_tokens"`
	TotalTokens      uint64 `json:"total_tokens" yaml:"total_tokens"`
}

// Add returns the element-wise sum of two usages.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}
