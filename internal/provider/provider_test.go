package provider

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ak7sky/asn-service/internal/logger"
)

// newTestServer serves canned JSON bodies by request path. Unknown paths get 404.
func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, found := routes[r.URL.Path]
		if !found {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) Config {
	return Config{
		Timeout:         time.Second,
		Retries:         3,
		RetryDelay:      time.Millisecond,
		BreakerFailures: 100,
		BaseURL:         baseURL,
	}
}

func testLogger() logger.Logger {
	return logger.Nop()
}
