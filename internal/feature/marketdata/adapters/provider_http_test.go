package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProvider_FetchPrice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/daily", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "2024-03-01", r.URL.Query().Get("date"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"symbol": "AAPL",
			"date": "2024-03-01",
			"open": "179.55",
			"high": "181.20",
			"low": "178.90",
			"close": "180.75",
			"volume": "52341000"
		}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(ProviderConfig{Name: "primary", BaseURL: srv.URL, APIKey: "test-key"}, srv.Client())

	got, err := p.FetchPrice(context.Background(), "AAPL", time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got.Date)
	assert.Equal(t, 180.75, got.Close)
	assert.Equal(t, int64(52341000), got.Volume)
}

func TestHTTPProvider_FetchPrice_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name: "provider error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status": "error", "message": "symbol not found"}`))
			},
		},
		{
			name: "malformed numeric field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status": "ok", "open": "x", "high": "1", "low": "1", "close": "1", "volume": "1"}`))
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := NewHTTPProvider(ProviderConfig{Name: "primary", BaseURL: srv.URL}, srv.Client())
			_, err := p.FetchPrice(context.Background(), "AAPL", time.Now())
			assert.Error(t, err)
		})
	}
}
