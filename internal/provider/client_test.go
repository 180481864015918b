package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
)

func countingServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		status := statuses[min(n, len(statuses))-1]
		if r.Header.Get("Accept") != "application/json" {
			status = http.StatusNotAcceptable
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"value":"ok"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

type valueResponse struct {
	Value string `json:"value"`
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	srv, calls := countingServer(t, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusOK)
	client := newHTTPClient("test", testConfig(srv.URL), testLogger())

	var resp valueResponse
	require.NoError(t, client.getJSON(context.Background(), srv.URL+"/x", nil, &resp))
	require.Equal(t, "ok", resp.Value)
	require.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_GivesUpAfterAttempts(t *testing.T) {
	srv, calls := countingServer(t, http.StatusInternalServerError)
	client := newHTTPClient("test", testConfig(srv.URL), testLogger())

	err := client.getJSON(context.Background(), srv.URL+"/x", nil, &valueResponse{})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusInternalServerError, reqErr.Status)
	require.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_DoesNotRetryClientErrors(t *testing.T) {
	srv, calls := countingServer(t, http.StatusNotFound)
	client := newHTTPClient("test", testConfig(srv.URL), testLogger())

	err := client.getJSON(context.Background(), srv.URL+"/x", nil, &valueResponse{})
	require.ErrorIs(t, err, ErrRequestFailed)
	require.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_RetriesTooManyRequests(t *testing.T) {
	srv, calls := countingServer(t, http.StatusTooManyRequests, http.StatusOK)
	client := newHTTPClient("test", testConfig(srv.URL), testLogger())

	require.NoError(t, client.getJSON(context.Background(), srv.URL+"/x", nil, &valueResponse{}))
	require.Equal(t, int32(2), calls.Load())
}

func TestHTTPClient_BreakerOpens(t *testing.T) {
	srv, calls := countingServer(t, http.StatusInternalServerError)
	cfg := testConfig(srv.URL)
	cfg.Retries = 1
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Minute
	client := newHTTPClient("test", cfg, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, client.getJSON(ctx, srv.URL+"/x", nil, &valueResponse{}), ErrRequestFailed)
	}
	err := client.getJSON(ctx, srv.URL+"/x", nil, &valueResponse{})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Equal(t, int32(2), calls.Load())
}

func TestHTTPClient_NotFoundKeepsBreakerClosed(t *testing.T) {
	srv, calls := countingServer(t, http.StatusNotFound)
	cfg := testConfig(srv.URL)
	cfg.BreakerFailures = 1
	client := newHTTPClient("test", cfg, testLogger())

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, client.getJSON(context.Background(), srv.URL+"/x", nil, &valueResponse{}), ErrRequestFailed)
	}
	require.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_BadJSON(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/x": `{not json`})
	client := newHTTPClient("test", testConfig(srv.URL), testLogger())

	err := client.getJSON(context.Background(), srv.URL+"/x", nil, &valueResponse{})
	require.Error(t, err)
	require.Contains(t, err.Error(), errDecodeResponse)
}

func TestHTTPClient_ContextCanceled(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK)
	client := newHTTPClient("test", testConfig(srv.URL), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := client.getJSON(ctx, srv.URL+"/x", nil, &valueResponse{})
	require.True(t, errors.Is(err, context.Canceled))
}
