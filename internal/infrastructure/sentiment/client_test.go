package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemind/internal/config"
	"cinemind/internal/domain/entity"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(config.SentimentConfig{
		BaseURL: srv.URL + "/",
		Timeout: 200 * time.Millisecond,
		Retry:   config.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})
	require.NoError(t, err)
	return c, &calls
}

func TestClient_Analyze(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, analyzePath, r.URL.Path)
		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "great film", req.Text)
		_ = json.NewEncoder(w).Encode(analyzeResponse{Sentiment: "positive", Confidence: 0.93})
	})

	got, err := c.Analyze(context.Background(), "great film")
	require.NoError(t, err)
	assert.Equal(t, entity.Sentiment{Label: entity.SentimentPositive, Score: 0.93}, got)
}

func TestClient_Analyze_Errors(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantCalls int32
	}{
		{
			name:      "server error is retried",
			handler:   func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			wantCalls: 2,
		},
		{
			name:      "client error is not retried",
			handler:   func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			wantCalls: 1,
		},
		{
			name: "unknown label is not retried",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(analyzeResponse{Sentiment: "ecstatic", Confidence: 0.5})
			},
			wantCalls: 1,
		},
		{
			name:      "malformed body is not retried",
			handler:   func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("{")) },
			wantCalls: 1,
		},
		{
			name: "timeout is retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			},
			wantCalls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, calls := newTestClient(t, tt.handler)
			_, err := c.Analyze(context.Background(), "text")
			assert.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestClient_RecoversAfterTransientFailure(t *testing.T) {
	var n atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(analyzeResponse{Sentiment: "NEG", Confidence: 0.7})
	})
	got, err := c.Analyze(context.Background(), "dull")
	require.NoError(t, err)
	assert.Equal(t, entity.SentimentNegative, got.Label)
}

func TestClient_HealthCheck(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == healthPath {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	assert.NoError(t, c.HealthCheck(context.Background()))
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.SentimentConfig{})
	assert.Error(t, err)
}
