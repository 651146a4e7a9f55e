// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llmfilter classifies unified records for relevance through an
// OpenAI-compatible chat completions API.
// See docs/ARCHITECTURE § Classification.
package llmfilter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperfuse/internal/httputil"
	"github.com/pdiddy/paperfuse/internal/lookup"
	"github.com/pdiddy/paperfuse/pkg/types"
)

const (
	defaultWorkers = 10
	defaultModel   = "gpt-4o-mini"
)

// Classifier runs relevance classification over unified records.
type Classifier struct {
	HTTP   *http.Client
	Config types.ClassifyConfig
	Logger zerolog.Logger

	// Sleep overrides retry waits in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// usageCounter accumulates token counts from concurrent workers.
type usageCounter struct {
	prompt     atomic.Uint64
	completion atomic.Uint64
	total      atomic.Uint64
}

func (u *usageCounter) add(usage types.TokenUsage) {
	u.prompt.Add(usage.PromptTokens)
	u.completion.Add(usage.CompletionTokens)
	u.total.Add(usage.TotalTokens)
}

func (u *usageCounter) snapshot() types.TokenUsage {
	return types.TokenUsage{
		PromptTokens:     u.prompt.Load(),
		CompletionTokens: u.completion.Load(),
		TotalTokens:      u.total.Load(),
	}
}

// Classify returns exactly one verdict per input record, in input order,
// plus the total token spend. A record whose API call or response parse
// fails gets an uncertain verdict carrying the failure as the reason; no
// record is ever dropped here.
func (c *Classifier) Classify(ctx context.Context, records []types.UnifiedRecord) ([]types.Verdict, types.TokenUsage) {
	if len(records) == 0 {
		return nil, types.TokenUsage{}
	}

	workers := c.Config.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	c.Logger.Info().
		Int("records", len(records)).
		Str("model", c.model()).
		Msg("starting relevance classification")

	var usage usageCounter
	runner := &lookup.Runner[types.UnifiedRecord, types.Verdict]{
		Workers:    workers,
		MaxRetries: c.Config.MaxRetries,
		Sleep:      c.Sleep,
		Logger:     c.Logger,
	}

	results := runner.Run(ctx, records, func(ctx context.Context, r types.UnifiedRecord) (types.Verdict, error) {
		verdict, tokens, err := c.classifyOne(ctx, r)
		if err != nil {
			return types.Verdict{}, err
		}
		usage.add(tokens)
		return verdict, nil
	})

	verdicts := make([]types.Verdict, len(records))
	for i, res := range results {
		if v, ok := res.Get(); ok {
			verdicts[i] = v
			continue
		}
		verdicts[i] = types.Verdict{
			ID:     records[i].DOI,
			Title:  records[i].Title,
			Label:  types.LabelUncertain,
			Reason: "classification request failed",
		}
	}

	total := usage.snapshot()
	c.Logger.Info().
		Int("verdicts", len(verdicts)).
		Uint64("prompt_tokens", total.PromptTokens).
		Uint64("completion_tokens", total.CompletionTokens).
		Msg("relevance classification complete")
	return verdicts, total
}

func (c *Classifier) model() string {
	if c.Config.Model != "" {
		return c.Config.Model
	}
	return defaultModel
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     uint64 `json:"prompt_tokens"`
		CompletionTokens uint64 `json:"completion_tokens"`
		TotalTokens      uint64 `json:"total_tokens"`
	} `json:"usage"`
}

// paperPayload is the record subset the model sees.
type paperPayload struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract_text"`
	TLDR     string `json:"tldr"`
	Journal  string `json:"journal"`
	Author   string `json:"author"`
	Date     string `json:"date"`
}

func (c *Classifier) classifyOne(ctx context.Context, r types.UnifiedRecord) (types.Verdict, types.TokenUsage, error) {
	paperJSON, err := json.MarshalIndent(paperPayload{
		ID:       r.DOI,
		Title:    r.Title,
		Abstract: r.Abstract,
		TLDR:     r.TLDR,
		Journal:  r.Journal,
		Author:   r.Author,
		Date:     r.Date,
	}, "", "  ")
	if err != nil {
		return types.Verdict{}, types.TokenUsage{}, lookup.Permanent(fmt.Errorf("encoding paper: %w", err))
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model(),
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(c.Config.Guidance, string(paperJSON))},
		},
		Temperature: 0.1,
		MaxTokens:   20000,
	})
	if err != nil {
		return types.Verdict{}, types.TokenUsage{}, lookup.Permanent(fmt.Errorf("encoding request: %w", err))
	}

	endpoint := strings.TrimRight(c.Config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return types.Verdict{}, types.TokenUsage{}, lookup.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Config.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return types.Verdict{}, types.TokenUsage{}, fmt.Errorf("chat request: %w", err)
	}
	if err := httputil.CheckStatus(resp); err != nil {
		return types.Verdict{}, types.TokenUsage{}, err
	}
	defer resp.Body.Close()

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return types.Verdict{}, types.TokenUsage{}, fmt.Errorf("decoding chat response: %w", err)
	}

	var tokens types.TokenUsage
	if chat.Usage != nil {
		tokens = types.TokenUsage{
			PromptTokens:     chat.Usage.PromptTokens,
			CompletionTokens: chat.Usage.CompletionTokens,
			TotalTokens:      chat.Usage.TotalTokens,
		}
	}

	var content string
	if len(chat.Choices) > 0 {
		content = chat.Choices[0].Message.Content
	}

	verdict := parseVerdict(content, r.DOI, r.Title, c.Logger)
	return verdict, tokens, nil
}

// parseVerdict decodes the model's JSON answer. Anything unparsable, or a
// label outside the closed set, degrades to an uncertain verdict carrying
// the problem as the reason.
func parseVerdict(content, id, title string, logger zerolog.Logger) types.Verdict {
	var out struct {
		Label      string   `json:"label"`
		Confidence float64  `json:"confidence"`
		Evidence   []string `json:"evidence"`
		Reason     string   `json:"reason"`
	}

	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
		preview := content
		if len(preview) > 200 {
			preview = preview[:200]
		}
		logger.Info().Err(err).Str("content_preview", preview).Msg("verdict parse failed, treating as uncertain")
		return types.Verdict{
			ID:     id,
			Title:  title,
			Label:  types.LabelUncertain,
			Reason: fmt.Sprintf("parse error: %v", err),
		}
	}

	label := types.VerdictLabel(out.Label)
	switch label {
	case types.LabelRelevant, types.LabelIrrelevant, types.LabelUncertain:
	default:
		return types.Verdict{
			ID:     id,
			Title:  title,
			Label:  types.LabelUncertain,
			Reason: fmt.Sprintf("unexpected label %q", out.Label),
		}
	}

	return types.Verdict{
		ID:         id,
		Title:      title,
		Label:      label,
		Confidence: out.Confidence,
		Evidence:   strings.Join(out.Evidence, ", "),
		Reason:     out.Reason,
	}
}

// extractJSON pulls the JSON object out of a model answer that may wrap it
// in a markdown code fence or surrounding prose.
func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)

	if strings.HasPrefix(trimmed, "```") {
		lines := strings.Split(trimmed, "\n")
		if len(lines) >= 2 {
			start := 0
			if lines[0] == "```" || strings.HasPrefix(lines[0], "```json") {
				start = 1
			}
			end := len(lines)
			if strings.TrimSpace(lines[end-1]) == "```" {
				end--
			}
			return strings.Join(lines[start:end], "\n")
		}
	}

	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return trimmed[start : end+1]
		}
	}
	return trimmed
}
