package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
)

func TestGenericCompatAdapter_Chat(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantErr     bool
		wantErrKind adapter.ErrorKind
		wantContent string
		wantFinish  string
	}{
		{
			name: "successful completion",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/chat/completions", r.URL.Path)
				_ = json.NewEncoder(w).Encode(compatResponse{
					Model: "local-model",
					Choices: []struct {
						Message      compatMessage `json:"message"`
						FinishReason string        `json:"finish_reason"`
					}{{Message: compatMessage{Role: "assistant", Content: "hello there"}, FinishReason: "stop"}},
				})
			},
			wantContent: "hello there",
			wantFinish:  "stop",
		},
		{
			name: "unauthorized maps to auth kind",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"bad key"}`))
			},
			wantErr:     true,
			wantErrKind: adapter.ErrAuth,
		},
		{
			name: "rate limited maps to rate_limit kind",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantErr:     true,
			wantErrKind: adapter.ErrRateLimit,
		},
		{
			name: "server error maps to server_5xx kind",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr:     true,
			wantErrKind: adapter.ErrServer5xx,
		},
		{
			name: "empty choices is classified other",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(compatResponse{Model: "local-model"})
			},
			wantErr:     true,
			wantErrKind: adapter.ErrOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			a := NewGenericCompatAdapter(srv.URL, "", true, []string{"local-model"})
			resp, err := a.Chat(context.Background(), adapter.ChatRequest{
				Model:    "local-model",
				Messages: []adapter.Message{{Role: "user", Content: "hi"}},
			})

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrKind, adapter.Classify(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantContent, resp.Content)
			assert.Equal(t, tt.wantFinish, resp.FinishReason)
		})
	}
}

// TestGenericCompatAdapter_Chat_RealDeadlineClassifiesAsTimeout exercises the
// actual http.Client path: a real context deadline expiring mid-request gets
// wrapped in a *url.Error by http.Client.Do, so this only passes if
// classifyTransportError unwraps with errors.Is rather than comparing
// against context.DeadlineExceeded directly.
func TestGenericCompatAdapter_Chat_RealDeadlineClassifiesAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	a := NewGenericCompatAdapter(srv.URL, "", true, []string{"local-model"})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Chat(ctx, adapter.ChatRequest{
		Model:    "local-model",
		Messages: []adapter.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, adapter.ErrTimeout, adapter.Classify(err))
}

func TestGenericCompatAdapter_HealthProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewGenericCompatAdapter(srv.URL, "", true, nil)
	result, err := a.HealthProbe(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Healthy)
}

func TestGenericCompatAdapter_Capabilities_SelfHostedTag(t *testing.T) {
	a := NewGenericCompatAdapter("http://localhost:11434/v1", "", true, []string{"llama3"})
	caps := a.Capabilities()
	assert.True(t, caps.HasTag("self_hosted"))
	assert.True(t, caps.HasModel("llama3"))
}
