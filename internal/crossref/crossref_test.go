// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package crossref

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfuse/pkg/types"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	old := crossrefAPIBase
	crossrefAPIBase = ts.URL
	t.Cleanup(func() { crossrefAPIBase = old })

	return &Client{
		HTTP:   ts.Client(),
		Logger: zerolog.Nop(),
		Sleep:  noSleep,
	}
}

func workJSON(doi, title, abstract string) string {
	return fmt.Sprintf(`{"message":{"items":[{
		"DOI": %q, "title": [%q], "container-title": ["Journal of Testing"],
		"abstract": %q, "issued": {"date-parts": [[2019, 3]]}
	}]}}`, doi, title, abstract)
}

func TestEnrichTitles_AlignedWithInput(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		title := r.URL.Query().Get("query.title")
		fmt.Fprint(w, workJSON("10.1000/"+title, title, ""))
	})

	results := c.EnrichTitles(context.Background(), []string{"alpha", "beta"})
	require.Len(t, results, 2)

	first, ok := results[0].Get()
	require.True(t, ok)
	assert.Equal(t, "10.1000/alpha", first.DOI)
	assert.Equal(t, "Journal of Testing", first.Journal)
	assert.Equal(t, "2019-03-01", first.PublicationDate)
	assert.Equal(t, "2019", first.Year)

	second, ok := results[1].Get()
	require.True(t, ok)
	assert.Equal(t, "10.1000/beta", second.DOI)
}

func TestEnrichTitles_BlankTitleSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, workJSON("10.1/x", "x", ""))
	})

	results := c.EnrichTitles(context.Background(), []string{"", "  ", "real title"})
	require.Len(t, results, 3)

	assert.False(t, results[0].IsSome())
	assert.False(t, results[1].IsSome())
	assert.True(t, results[2].IsSome())
	assert.Equal(t, int32(1), calls.Load())
}

func TestEnrichTitles_NoMatchLeavesSlotEmpty(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query.title") == "ghost" {
			fmt.Fprint(w, `{"message":{"items":[]}}`)
			return
		}
		fmt.Fprint(w, workJSON("10.1/found", "found", ""))
	})

	results := c.EnrichTitles(context.Background(), []string{"ghost", "found"})
	assert.False(t, results[0].IsSome())
	assert.True(t, results[1].IsSome())
}

func TestEnrichTitles_RequestParameters(t *testing.T) {
	var rows, sel, mailto string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rows, sel, mailto = q.Get("rows"), q.Get("select"), q.Get("mailto")
		fmt.Fprint(w, workJSON("10.1/x", "x", ""))
	})
	c.Config = types.EnrichConfig{Mailto: "lab@example.org"}

	c.EnrichTitles(context.Background(), []string{"x"})

	assert.Equal(t, "1", rows)
	assert.Equal(t, "DOI,title,container-title,abstract,issued", sel)
	assert.Equal(t, "lab@example.org", mailto)
}

func TestEnrichTitles_StripsAbstractMarkup(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, workJSON("10.1/x", "x",
			"<jats:p>We propose a <jats:italic>novel</jats:italic> method.</jats:p>"))
	})

	results := c.EnrichTitles(context.Background(), []string{"x"})
	m, ok := results[0].Get()
	require.True(t, ok)
	assert.Equal(t, "We propose a novel method.", m.Abstract)
}

func TestEnrichTitles_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, workJSON("10.1/x", "x", ""))
	})

	results := c.EnrichTitles(context.Background(), []string{"x"})
	assert.True(t, results[0].IsSome())
	assert.Equal(t, int32(2), calls.Load())
}

func TestFormatIssued_YearOnly(t *testing.T) {
	date, year := formatIssued([][]int{{2021}})
	assert.Equal(t, "2021-01-01", date)
	assert.Equal(t, "2021", year)

	date, year = formatIssued(nil)
	assert.Empty(t, date)
	assert.Empty(t, year)
}
