// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paperfuse/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SearchConfig holds settings for the search stage.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// Source selects the search backend: "gscholar" or "openalex".
	Source string `json:"source" yaml:"source"`

	// Pages lists the 1-indexed result pages to fetch.
	Pages []int `json:"pages" yaml:"pages"`

	// YearLow restricts results to this year onwards. Zero means the
	// default window (current year minus five).
	YearLow int `json:"year_low" yaml:"year_low"`

	// Mirror overrides the Google Scholar base URL for mirror sites.
	Mirror string `json:"mirror,omitempty" yaml:"mirror,omitempty"`

	// SourceType is the Scholar as_sdt parameter (default "0,5",
	// articles only).
	SourceType string `json:"source_type" yaml:"source_type"`

	// Proxy is an optional proxy URL for Scholar requests.
	Proxy string `json:"proxy,omitempty" yaml:"proxy,omitempty"`

	// CookieHeader is a pre-built Cookie header for Scholar requests.
	// Session management itself lives outside the pipeline.
	CookieHeader string `json:"cookie_header,omitempty" yaml:"cookie_header,omitempty"`

	// OpenAlexEmail is sent as the mailto parameter for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty"`
}

// EnrichConfig holds settings for the title enrichment stage.
type EnrichConfig struct {
	HTTPConfig `yaml:",inline"`

	// Workers bounds concurrent title lookups (default 3).
	Workers int `json:"workers" yaml:"workers"`

	// MaxRetries is the retry budget per lookup (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Mailto is the polite pool contact email.
	Mailto string `json:"mailto,omitempty" yaml:"mailto,omitempty"`
}

// RankingConfig holds settings for the venue ranking stage. An empty APIKey
// switches the stage off.
type RankingConfig struct {
	HTTPConfig `yaml:",inline"`

	// APIKey authenticates against the ranking source.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MinInterval is the floor spacing between any two requests to the
	// ranking source (default 600ms).
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"`
}

// FilterSpec holds the declarative ranking filters. All fields are optional;
// a record passes only if every present predicate succeeds. When any filter
// is set, records without resolved metrics are dropped.
type FilterSpec struct {
	// MinImpactFactor keeps records whose impact factor parses to at
	// least this value.
	MinImpactFactor *float64 `json:"min_impact_factor,omitempty" yaml:"min_impact_factor,omitempty"`

	// MinJCI keeps records whose JCI parses to at least this value.
	MinJCI *float64 `json:"min_jci,omitempty" yaml:"min_jci,omitempty"`

	// Partition and the variant fields are substring matches against the
	// corresponding metric.
	Partition     string `json:"partition,omitempty" yaml:"partition,omitempty"`
	PartitionTop  string `json:"partition_top,omitempty" yaml:"partition_top,omitempty"`
	PartitionBase string `json:"partition_base,omitempty" yaml:"partition_base,omitempty"`
	PartitionUp   string `json:"partition_up,omitempty" yaml:"partition_up,omitempty"`
}

// Active reports whether any predicate is set.
func (f FilterSpec) Active() bool {
	return f.MinImpactFactor != nil || f.MinJCI != nil ||
		f.Partition != "" || f.PartitionTop != "" ||
		f.PartitionBase != "" || f.PartitionUp != ""
}

// BatchConfig holds settings for the batch metadata stage.
type BatchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxBatchSize caps identifiers per request (default 500).
	MaxBatchSize int `json:"max_batch_size" yaml:"max_batch_size"`

	// BatchDelay is the pause between consecutive batch requests
	// (default 1s, the unauthenticated rate tier).
	BatchDelay time.Duration `json:"batch_delay" yaml:"batch_delay"`

	// APIKey is an optional key for higher rate limits.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// ClassifyConfig holds settings for the relevance classification stage. An
// empty BaseURL switches the stage off.
type ClassifyConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the OpenAI-compatible API root (e.g. "https://api.openai.com/v1").
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// APIKey authenticates against the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Model is the model identifier (default "gpt-4o-mini").
	Model string `json:"model" yaml:"model"`

	// Guidance is the user-supplied relevance hint passed to the model.
	Guidance string `json:"guidance,omitempty" yaml:"guidance,omitempty"`

	// Workers bounds concurrent classification requests (default 10).
	Workers int `json:"workers" yaml:"workers"`

	// MaxRetries is the retry budget per request (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// OutputConfig holds settings for run outputs.
type OutputConfig struct {
	// Dir is the base output directory; each run gets a timestamped
	// subfolder beneath it.
	Dir string `json:"dir" yaml:"dir"`

	// Archive enables the SQLite run archive under Dir.
	Archive bool `json:"archive" yaml:"archive"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// Format is "json" or "console".
	Format string `json:"format" yaml:"format"`
}

// PipelineConfig groups all stage configurations for one run.
type PipelineConfig struct {
	Search   SearchConfig   `json:"search" yaml:"search"`
	Enrich   EnrichConfig   `json:"enrich" yaml:"enrich"`
	Ranking  RankingConfig  `json:"ranking" yaml:"ranking"`
	Filters  FilterSpec     `json:"filters" yaml:"filters"`
	Batch    BatchConfig    `json:"batch" yaml:"batch"`
	Classify ClassifyConfig `json:"classify" yaml:"classify"`
	Output   OutputConfig   `json:"output" yaml:"output"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}
