// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llmfilter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfuse/pkg/types"
)

func noSleep(context.Context, time.Duration) error { return nil }

func chatJSON(content string, prompt, completion uint64) string {
	body := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
		"usage": map[string]uint64{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	}
	data, _ := json.Marshal(body)
	return string(data)
}

func newClassifier(t *testing.T, handler http.HandlerFunc) *Classifier {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	return &Classifier{
		HTTP:   ts.Client(),
		Config: types.ClassifyConfig{BaseURL: ts.URL, APIKey: "k", Model: "test-model"},
		Logger: zerolog.Nop(),
		Sleep:  noSleep,
	}
}

func verdictJSON(label string, confidence float64) string {
	return fmt.Sprintf(`{"label": %q, "confidence": %g, "evidence": ["kw1", "kw2"], "reason": "because"}`, label, confidence)
}

func TestClassify_OneVerdictPerRecordInOrder(t *testing.T) {
	c := newClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		label := "irrelevant"
		if strings.Contains(req.Messages[1].Content, "landslide") {
			label = "relevant"
		}
		fmt.Fprint(w, chatJSON(verdictJSON(label, 0.9), 10, 5))
	})

	records := []types.UnifiedRecord{
		{DOI: "10.1/a", Title: "landslide detection"},
		{DOI: "10.1/b", Title: "stock prediction"},
	}

	verdicts, usage := c.Classify(context.Background(), records)
	require.Len(t, verdicts, 2)

	assert.Equal(t, "10.1/a", verdicts[0].ID)
	assert.Equal(t, types.LabelRelevant, verdicts[0].Label)
	assert.Equal(t, 0.9, verdicts[0].Confidence)
	assert.Equal(t, "kw1, kw2", verdicts[0].Evidence)
	assert.Equal(t, types.LabelIrrelevant, verdicts[1].Label)

	assert.Equal(t, uint64(20), usage.PromptTokens)
	assert.Equal(t, uint64(10), usage.CompletionTokens)
	assert.Equal(t, uint64(30), usage.TotalTokens)
}

func TestClassify_RequestShape(t *testing.T) {
	var auth, path string
	var req chatRequest
	c := newClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprint(w, chatJSON(verdictJSON("relevant", 1), 1, 1))
	})
	c.Config.Guidance = "landslide, slope stability"

	c.Classify(context.Background(), []types.UnifiedRecord{{DOI: "10.1/a", Title: "T"}})

	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "landslide, slope stability")
	assert.Contains(t, req.Messages[1].Content, `"10.1/a"`)
}

func TestClassify_CodeFencedAnswerParses(t *testing.T) {
	c := newClassifier(t, func(w http.ResponseWriter, _ *http.Request) {
		fenced := "```json\n" + verdictJSON("relevant", 0.8) + "\n```"
		fmt.Fprint(w, chatJSON(fenced, 1, 1))
	})

	verdicts, _ := c.Classify(context.Background(), []types.UnifiedRecord{{DOI: "10.1/a"}})
	require.Len(t, verdicts, 1)
	assert.Equal(t, types.LabelRelevant, verdicts[0].Label)
}

func TestClassify_UnparsableAnswerIsUncertain(t *testing.T) {
	c := newClassifier(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, chatJSON("I think this paper is probably relevant.", 1, 1))
	})

	verdicts, _ := c.Classify(context.Background(), []types.UnifiedRecord{{DOI: "10.1/a", Title: "T"}})
	require.Len(t, verdicts, 1)
	assert.Equal(t, types.LabelUncertain, verdicts[0].Label)
	assert.Contains(t, verdicts[0].Reason, "parse error")
	assert.Equal(t, "10.1/a", verdicts[0].ID)
	assert.Equal(t, "T", verdicts[0].Title)
}

func TestClassify_UnknownLabelIsUncertain(t *testing.T) {
	c := newClassifier(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, chatJSON(verdictJSON("maybe", 0.5), 1, 1))
	})

	verdicts, _ := c.Classify(context.Background(), []types.UnifiedRecord{{DOI: "10.1/a"}})
	require.Len(t, verdicts, 1)
	assert.Equal(t, types.LabelUncertain, verdicts[0].Label)
	assert.Contains(t, verdicts[0].Reason, "maybe")
}

func TestClassify_FailedRequestIsUncertainNotDropped(t *testing.T) {
	c := newClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if strings.Contains(req.Messages[1].Content, "broken") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, chatJSON(verdictJSON("relevant", 1), 1, 1))
	})

	records := []types.UnifiedRecord{
		{DOI: "10.1/ok", Title: "fine paper"},
		{DOI: "10.1/bad", Title: "broken paper"},
	}

	verdicts, _ := c.Classify(context.Background(), records)
	require.Len(t, verdicts, 2)
	assert.Equal(t, types.LabelRelevant, verdicts[0].Label)
	assert.Equal(t, types.LabelUncertain, verdicts[1].Label)
	assert.Equal(t, "10.1/bad", verdicts[1].ID)
}

func TestClassify_ConcurrencyCeiling(t *testing.T) {
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	c := newClassifier(t, func(w http.ResponseWriter, _ *http.Request) {
		cur := inFlight.Add(1)
		mu.Lock()
		if cur > peak.Load() {
			peak.Store(cur)
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		fmt.Fprint(w, chatJSON(verdictJSON("relevant", 1), 1, 1))
	})
	c.Config.Workers = 4

	records := make([]types.UnifiedRecord, 20)
	for i := range records {
		records[i] = types.UnifiedRecord{DOI: fmt.Sprintf("10.1/p%d", i)}
	}

	verdicts, _ := c.Classify(context.Background(), records)
	assert.Len(t, verdicts, 20)
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestClassify_TokenUsageAccumulatesAcrossWorkers(t *testing.T) {
	c := newClassifier(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, chatJSON(verdictJSON("relevant", 1), 7, 3))
	})
	c.Config.Workers = 10

	records := make([]types.UnifiedRecord, 100)
	for i := range records {
		records[i] = types.UnifiedRecord{DOI: fmt.Sprintf("10.1/p%d", i)}
	}

	_, usage := c.Classify(context.Background(), records)
	assert.Equal(t, uint64(700), usage.PromptTokens)
	assert.Equal(t, uint64(300), usage.CompletionTokens)
	assert.Equal(t, uint64(1000), usage.TotalTokens)
}

func TestClassify_EmptyInput(t *testing.T) {
	c := newClassifier(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	})

	verdicts, usage := c.Classify(context.Background(), nil)
	assert.Empty(t, verdicts)
	assert.Equal(t, types.TokenUsage{}, usage)
}

func TestExtractJSON(t *testing.T) {
	plain := `{"label": "relevant"}`
	assert.Equal(t, plain, extractJSON(plain))
	assert.Equal(t, plain, extractJSON("```json\n"+plain+"\n```"))
	assert.Equal(t, plain, extractJSON("```\n"+plain+"\n```"))
	assert.Equal(t, plain, extractJSON("Here is the result: "+plain))
}
