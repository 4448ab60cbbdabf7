package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridline/meter-rollup/feed"
	"github.com/gridline/meter-rollup/rollup"
)

func TestHTTPSource_FetchesAndConvertsReadings(t *testing.T) {
	// GIVEN: A vendor endpoint serving one meter's partial day
	var gotDate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDate = r.URL.Query().Get("date")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"meter-1": {"00:00": 10.5, "00:30": 10.95}}`))
	}))
	defer srv.Close()

	// WHEN: Fetching a date
	src := feed.NewHTTPSource(srv.URL)
	readings, err := src.Fetch(context.Background(), rollup.NewRunDate(2025, time.February, 19))

	// THEN: The date travels as a query parameter and values arrive as decimals
	require.NoError(t, err)
	assert.Equal(t, "2025-02-19", gotDate)
	require.Contains(t, readings, "meter-1")
	assert.True(t, readings["meter-1"]["00:30"].Equal(decimal.RequireFromString("10.95")))
}

func TestHTTPSource_NonOKStatus_IsUpstreamFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance window", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := feed.NewHTTPSource(srv.URL).Fetch(context.Background(), rollup.NewRunDate(2025, time.February, 19))

	assert.ErrorIs(t, err, rollup.ErrUpstreamFetch)
}

func TestHTTPSource_MalformedPayload_IsUpstreamFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := feed.NewHTTPSource(srv.URL).Fetch(context.Background(), rollup.NewRunDate(2025, time.February, 19))

	assert.ErrorIs(t, err, rollup.ErrUpstreamFetch)
}

func TestHTTPSource_UnreachableVendor_IsUpstreamFetch(t *testing.T) {
	src := feed.NewHTTPSource("http://127.0.0.1:1")
	src.Client = &http.Client{Timeout: 500 * time.Millisecond}

	_, err := src.Fetch(context.Background(), rollup.NewRunDate(2025, time.February, 19))

	assert.ErrorIs(t, err, rollup.ErrUpstreamFetch)
}
