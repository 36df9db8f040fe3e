package loki

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athena-ops/athena-stack/internal/timewindow"
)

const sampleResponse = `{
	"status": "success",
	"data": {
		"resultType": "streams",
		"result": [
			{
				"stream": {"app": "api", "level": "error"},
				"values": [
					["1717243200000000000", "ERROR connection refused to db:5432"],
					["1717243260000000000", "ERROR timeout waiting for response"]
				]
			},
			{
				"stream": {"app": "worker"},
				"values": [
					["1717243230000000000", "INFO job completed"]
				]
			}
		]
	}
}`

func TestQueryRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/query_range", r.URL.Path)
		assert.Equal(t, `{app="api"}`, r.URL.Query().Get("query"))
		assert.NotEmpty(t, r.URL.Query().Get("start"))
		assert.NotEmpty(t, r.URL.Query().Get("end"))
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	entries, err := c.QueryRange(context.Background(), `{app="api"}`, timewindow.LastHours(1))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Entries are merged across streams and ordered by time.
	assert.Equal(t, "ERROR connection refused to db:5432", entries[0].Message)
	assert.Equal(t, "INFO job completed", entries[1].Message)
	assert.Equal(t, "ERROR timeout waiting for response", entries[2].Message)
	assert.Equal(t, "error", entries[0].Level)
	assert.Equal(t, "api", entries[0].Labels["app"])
}

func TestQueryRangeRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, WithMaxRetries(3))
	entries, err := c.QueryRange(context.Background(), `{app="api"}`, timewindow.LastHours(1))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueryRangeExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, WithMaxRetries(1))
	_, err := c.QueryRange(context.Background(), `{app="api"}`, timewindow.LastHours(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestQueryRangeBadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("parse error in LogQL"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, WithMaxRetries(3))
	_, err := c.QueryRange(context.Background(), `{app=`, timewindow.LastHours(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	// A malformed query fails the same way every time.
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueryRangeWithStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	entries, stats, err := c.QueryRangeWithStats(context.Background(), `{app="api"}`, timewindow.LastHours(1))
	require.NoError(t, err)

	assert.Len(t, entries, 3)
	assert.Equal(t, 2, stats.Streams)
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, []string{"app", "level"}, stats.LabelNames)
}

func TestQueryRangeParsesJSONMessages(t *testing.T) {
	const jsonResponse = `{
		"status": "success",
		"data": {
			"resultType": "streams",
			"result": [
				{
					"stream": {"app": "api"},
					"values": [
						["1717243200000000000", "{\"level\":\"error\",\"message\":\"connection refused\",\"caller\":\"db.go:42\"}"],
						["1717243260000000000", "{\"severity\":\"warn\",\"msg\":\"slow query\"}"],
						["1717243320000000000", "plain text line"],
						["1717243380000000000", "{not json at all"]
					]
				}
			]
		}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(jsonResponse))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	entries, err := c.QueryRange(context.Background(), `{app="api"}`, timewindow.LastHours(1))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "connection refused", entries[0].Message)
	assert.Equal(t, "error", entries[0].Level)
	assert.Equal(t, "slow query", entries[1].Message)
	assert.Equal(t, "warn", entries[1].Level)
	// Non-JSON messages pass through untouched.
	assert.Equal(t, "plain text line", entries[2].Message)
	assert.Equal(t, "{not json at all", entries[3].Message)
}

func TestQueryRangeRateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, WithMaxRetries(2))
	entries, err := c.QueryRange(context.Background(), `{app="api"}`, timewindow.LastHours(1))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestQueryRangeInvalidWindow(t *testing.T) {
	c := NewClient("http://localhost:3100", time.Second)
	now := time.Now().UTC()
	w := timewindow.Window{Start: now, End: now.Add(-time.Hour)}

	_, err := c.QueryRange(context.Background(), `{}`, w)
	assert.ErrorIs(t, err, timewindow.ErrStartAfterEnd)
}
