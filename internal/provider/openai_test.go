package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptsense/promptsense/internal/models"
)

func openAIReply(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestNewOpenAI(t *testing.T) {
	t.Run("requires API key", func(t *testing.T) {
		_, err := NewOpenAI(Config{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key not configured")
	})

	t.Run("applies defaults", func(t *testing.T) {
		c, err := NewOpenAI(Config{APIKey: "sk-test"})
		require.NoError(t, err)
		assert.Equal(t, "openai", c.Name())
		assert.Equal(t, "gpt-4o-mini", c.Model())
		assert.Equal(t, defaultOpenAIBaseURL, c.baseURL)
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: "http://localhost:9999/", Model: "gpt-4o"})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9999", c.baseURL)
		assert.Equal(t, "gpt-4o", c.Model())
	})
}

func TestOpenAIClassify(t *testing.T) {
	var gotReq openAIRequest
	var gotRaw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &gotReq))
		assert.NoError(t, json.Unmarshal(body, &gotRaw))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(openAIReply("  positive\n")))
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	require.NoError(t, err)

	label, err := c.Classify(context.Background(), Request{
		Task:   models.TaskSentiment,
		System: "You classify reviews.",
		User:   "Review: great app",
	})
	require.NoError(t, err)
	assert.Equal(t, "positive", label, "response should be trimmed")

	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "You classify reviews.", gotReq.Messages[0].Content)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
	assert.Equal(t, "Review: great app", gotReq.Messages[1].Content)
	assert.Equal(t, 1024, gotReq.MaxTokens)
	// Temperature must be on the wire even at zero or the API samples at 1.0.
	assert.Contains(t, gotRaw, "temperature")
	assert.JSONEq(t, "0", string(gotRaw["temperature"]))
}

func TestOpenAIClassify_NoSystemPrompt(t *testing.T) {
	var gotReq openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte(openAIReply("neutral")))
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), Request{User: "Review: ok"})
	require.NoError(t, err)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestOpenAIClassify_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(openAIReply("negative")))
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	label, err := c.Classify(context.Background(), Request{User: "Review: bad"})
	require.NoError(t, err)
	assert.Equal(t, "negative", label)
	assert.EqualValues(t, 2, calls.Load())
}

func TestOpenAIClassify_ContextCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = c.Classify(ctx, Request{User: "Review: meh"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenAIClassify_ErrorResponses(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": {"message": "bad model"}}`))
		}))
		defer srv.Close()

		c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = c.Classify(context.Background(), Request{User: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
	})

	t.Run("error field in body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error": {"message": "quota exhausted", "type": "insufficient_quota"}}`))
		}))
		defer srv.Close()

		c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = c.Classify(context.Background(), Request{User: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API error: quota exhausted")
	})

	t.Run("empty choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices": []}`))
		}))
		defer srv.Close()

		c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = c.Classify(context.Background(), Request{User: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no completion returned")
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = c.Classify(context.Background(), Request{User: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse response")
	})
}
