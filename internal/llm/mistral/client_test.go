package mistral

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LazarevaL/agro-llm-hack/internal/llm"
)

func TestPredictSendsSystemAndFencedUserPrompt(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"[{\"Дата\":\"01.05.2024\"}]"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "key-1", BaseURL: srv.URL + "/v1", SystemPrompt: "sys"}, nil)
	require.NoError(t, err)

	out, err := c.Predict(context.Background(), "instr", "report")
	require.NoError(t, err)
	assert.Equal(t, `[{"Дата":"01.05.2024"}]`, out)

	assert.Equal(t, "mistral-large-2411", got.Model)
	assert.Zero(t, got.Temperature)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "sys"}, got.Messages[0])
	assert.Equal(t, "instr\n\n```report```", got.Messages[1].Content)
}

func TestPredictMapsTooManyRequestsToRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Requests rate limit exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = c.Predict(context.Background(), "instr", "")
	require.ErrorIs(t, err, llm.ErrRateLimited)
}

func TestPredictFailsWithoutChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = c.Predict(context.Background(), "instr", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, llm.ErrRateLimited)
}

func TestNewClientRejectsBadProxy(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k", ProxyURL: "ftp://proxy:1"}, nil)
	assert.Error(t, err)
}
