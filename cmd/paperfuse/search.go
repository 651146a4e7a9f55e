// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paperfuse/internal/crossref"
	"github.com/pdiddy/paperfuse/internal/export"
	"github.com/pdiddy/paperfuse/internal/httputil"
	"github.com/pdiddy/paperfuse/internal/llmfilter"
	"github.com/pdiddy/paperfuse/internal/logging"
	"github.com/pdiddy/paperfuse/internal/pipeline"
	"github.com/pdiddy/paperfuse/internal/rankings"
	"github.com/pdiddy/paperfuse/internal/search"
	"github.com/pdiddy/paperfuse/internal/semanticscholar"
	"github.com/pdiddy/paperfuse/internal/store"
	"github.com/pdiddy/paperfuse/pkg/types"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "paperfuse/0.1"
)

var searchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Run the lookup pipeline for a keyword",
	Long: `Search runs the full pipeline: query the selected source page by page,
resolve DOIs through Crossref, attach venue rankings, pull per-paper
metadata from Semantic Scholar, fuse everything into one dataset, and
classify relevance with an LLM.

Stages without credentials are skipped: no ranking key means no venue
metrics, no LLM base URL means no classification. Each stage writes its
CSV snapshot into the run folder as it completes.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()

	f.String("source", "gscholar", "search backend (gscholar, openalex)")
	f.String("pages", "1", `result pages to fetch ("3" or "1-10")`)
	f.Int("ylo", 0, "earliest publication year (default: current year - 5)")
	f.String("mirror", "", "Google Scholar mirror base URL")
	f.String("proxy", "", "proxy URL for Scholar requests")
	f.String("sdt", "0,5", "Scholar as_sdt source type parameter")
	f.String("cookie", "", "Cookie header for Scholar requests")
	f.String("openalex-email", "", "contact email for the OpenAlex polite pool")

	f.String("mailto", "", "contact email for the Crossref polite pool")
	f.Int("enrich-workers", 3, "concurrent Crossref title lookups")

	f.String("easyscholar-key", "", "EasyScholar API key (enables venue ranking)")
	f.Float64("min-impact-factor", 0, "keep records with impact factor >= value")
	f.Float64("min-jci", 0, "keep records with JCI >= value")
	f.String("partition", "", "keep records whose SCI partition contains value (e.g. Q1)")
	f.String("partition-top", "", "substring filter on the partition-top variant")
	f.String("partition-base", "", "substring filter on the partition-base variant")
	f.String("partition-up", "", "substring filter on the partition-up variant")

	f.String("s2-key", "", "Semantic Scholar API key (optional, raises rate limits)")

	f.String("llm-base-url", "", "OpenAI-compatible API root (enables classification)")
	f.String("llm-key", "", "LLM API key")
	f.String("llm-model", "gpt-4o-mini", "LLM model identifier")
	f.String("guidance", "", "relevance guidance keywords passed to the classifier")

	f.String("out", "output", "base output directory")
	f.Bool("archive", false, "also persist the run into the SQLite archive")
	f.Duration("timeout", defaultTimeout, "HTTP request timeout")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	keyword := args[0]
	f := cmd.Flags()

	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logFormat, _ := rootCmd.PersistentFlags().GetString("log-format")
	logger := logging.New(types.LoggingConfig{Level: logLevel, Format: logFormat}, os.Stderr)

	pagesSpec, _ := f.GetString("pages")
	pages, err := parsePages(pagesSpec)
	if err != nil {
		return err
	}

	ylo, _ := f.GetInt("ylo")
	if ylo == 0 {
		ylo = time.Now().Year() - 5
	}

	timeout, _ := f.GetDuration("timeout")
	httpCfg := types.HTTPConfig{Timeout: timeout, UserAgent: defaultUserAgent}

	sourceName, _ := f.GetString("source")
	proxy, _ := f.GetString("proxy")
	oaEmail, _ := f.GetString("openalex-email")
	searchCfg := types.SearchConfig{
		HTTPConfig:    httpCfg,
		Source:        sourceName,
		Pages:         pages,
		YearLow:       ylo,
		Proxy:         proxy,
		OpenAlexEmail: secretDefault("openalex-email", oaEmail),
	}
	searchCfg.Mirror, _ = f.GetString("mirror")
	searchCfg.SourceType, _ = f.GetString("sdt")
	searchCfg.CookieHeader, _ = f.GetString("cookie")

	client, err := httputil.NewClient(httpCfg, proxy)
	if err != nil {
		return err
	}

	var src search.Source
	switch sourceName {
	case "gscholar":
		src = &search.ScholarSource{Client: client, Config: searchCfg}
	case "openalex":
		src = &search.OpenAlexSource{Client: client, Config: searchCfg}
	default:
		return fmt.Errorf("unknown source %q (use gscholar or openalex)", sourceName)
	}

	outDir, _ := f.GetString("out")
	started := time.Now()
	run, err := export.NewRun(outDir, keyword, started)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Run folder:", run.Dir)

	p := &pipeline.Pipeline{
		Source:   src,
		Exporter: run,
		Logger:   logger,
	}

	mailto, _ := f.GetString("mailto")
	enrichWorkers, _ := f.GetInt("enrich-workers")
	p.Enricher = &crossref.Client{
		HTTP:   client,
		Config: types.EnrichConfig{HTTPConfig: httpCfg, Workers: enrichWorkers, Mailto: mailto},
		Logger: logger,
	}

	esKeyFlag, _ := f.GetString("easyscholar-key")
	if esKey := secretDefault("easyscholar-api-key", esKeyFlag); esKey != "" {
		p.Ranker = rankings.NewClient(client,
			types.RankingConfig{HTTPConfig: httpCfg, APIKey: esKey}, logger)
	}
	p.Filters = filterSpec(cmd)
	if p.Ranker == nil && p.Filters.Active() {
		return fmt.Errorf("ranking filters need an EasyScholar key")
	}

	s2KeyFlag, _ := f.GetString("s2-key")
	p.Batch = &semanticscholar.Client{
		HTTP:   client,
		Config: types.BatchConfig{HTTPConfig: httpCfg, APIKey: secretDefault("semantic-scholar-api-key", s2KeyFlag)},
		Logger: logger,
	}

	llmBase, _ := f.GetString("llm-base-url")
	if llmBase != "" {
		llmKeyFlag, _ := f.GetString("llm-key")
		llmModel, _ := f.GetString("llm-model")
		guidance, _ := f.GetString("guidance")
		p.Classifier = &llmfilter.Classifier{
			HTTP: client,
			Config: types.ClassifyConfig{
				HTTPConfig: httpCfg,
				BaseURL:    llmBase,
				APIKey:     secretDefault("llm-api-key", llmKeyFlag),
				Model:      llmModel,
				Guidance:   guidance,
			},
			Logger: logger,
		}
	}

	report, err := p.Run(cmd.Context(), keyword, pages)
	if err != nil {
		return err
	}
	finished := time.Now()

	if err := run.WriteSummary(export.Summary{
		Keyword:    keyword,
		Source:     sourceName,
		StartedAt:  started,
		FinishedAt: finished,
		StageCounts: map[string]int{
			"found":      report.Found,
			"enriched":   report.Enriched,
			"ranked":     report.Ranked,
			"matched":    report.Matched,
			"fused":      report.Fused,
			"relevant":   report.Relevant,
			"irrelevant": report.Irrelevant,
			"uncertain":  report.Uncertain,
		},
		TokenUsage: report.Tokens,
	}); err != nil {
		return err
	}

	if archive, _ := f.GetBool("archive"); archive && report.Fused > 0 {
		if err := archiveRun(cmd, outDir, keyword, sourceName, started, finished, report); err != nil {
			return err
		}
	}

	fmt.Printf("found %d, fused %d, relevant %d (results in %s)\n",
		report.Found, report.Fused, report.Relevant, run.Dir)
	return nil
}

func archiveRun(cmd *cobra.Command, outDir, keyword, source string, started, finished time.Time, report *pipeline.Report) error {
	s, err := store.Open(outDir)
	if err != nil {
		return err
	}
	defer s.Close()

	runID, err := s.SaveRun(cmd.Context(), store.RunMeta{
		Keyword:    keyword,
		Source:     source,
		StartedAt:  started,
		FinishedAt: finished,
		Tokens:     report.Tokens,
	}, report.UnifiedRecords, report.Verdicts)
	if err != nil {
		return fmt.Errorf("archiving run: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Archived as run %d\n", runID)
	return nil
}

// filterSpec builds the ranking filter from flags, treating unset numeric
// flags as absent predicates rather than zero thresholds.
func filterSpec(cmd *cobra.Command) types.FilterSpec {
	f := cmd.Flags()
	var spec types.FilterSpec

	if f.Changed("min-impact-factor") {
		v, _ := f.GetFloat64("min-impact-factor")
		spec.MinImpactFactor = &v
	}
	if f.Changed("min-jci") {
		v, _ := f.GetFloat64("min-jci")
		spec.MinJCI = &v
	}
	spec.Partition, _ = f.GetString("partition")
	spec.PartitionTop, _ = f.GetString("partition-top")
	spec.PartitionBase, _ = f.GetString("partition-base")
	spec.PartitionUp, _ = f.GetString("partition-up")
	return spec
}

// parsePages expands a pages spec: "3" is one page, "1-10" an inclusive range.
func parsePages(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)

	if lo, hi, ok := strings.Cut(spec, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid pages range %q", spec)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid pages range %q", spec)
		}
		if start < 1 || end < start {
			return nil, fmt.Errorf("invalid pages range %q", spec)
		}
		pages := make([]int, 0, end-start+1)
		for p := start; p <= end; p++ {
			pages = append(pages, p)
		}
		return pages, nil
	}

	page, err := strconv.Atoi(spec)
	if err != nil || page < 1 {
		return nil, fmt.Errorf("invalid pages %q", spec)
	}
	return []int{page}, nil
}
