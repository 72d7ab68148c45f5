package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anooppandey17/virtual-teacher/internal/llm"
)

func testConfig(url string) llm.Config {
	return llm.Config{
		BaseURL:              url,
		APIKey:               "test-key",
		Model:                "test-model",
		Temperature:          0.7,
		MaxTokens:            500,
		TopP:                 0.9,
		FrequencyPenalty:     0.3,
		PresencePenalty:      0.3,
		Timeout:              2 * time.Second,
		StreamConnectTimeout: 2 * time.Second,
		StreamIdleTimeout:    2 * time.Second,
	}
}

// drain reads a stream to completion and returns its fragments.
func drain(t *testing.T, s llm.FragmentStream) ([]string, error) {
	t.Helper()
	defer func() { require.NoError(t, s.Close()) }()
	var out []string
	for {
		f, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}

func TestClient_Complete(t *testing.T) {
	t.Run("Success sends the configured request and trims the answer", func(t *testing.T) {
		var captured map[string]any
		var auth, path string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			path = r.URL.Path
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  2+2 is 4.  "}}]}`))
		}))
		defer server.Close()

		client := llm.NewClient(testConfig(server.URL))
		reply, err := client.Complete(context.Background(), llm.Request{Prompt: "What is 2+2?", Persona: "Be kind."})

		require.NoError(t, err)
		assert.Equal(t, "2+2 is 4.", reply.Text)
		assert.Equal(t, llm.FailureNone, reply.Failure)
		assert.Equal(t, "Bearer test-key", auth)
		assert.Equal(t, "/chat/completions", path)
		assert.Equal(t, "test-model", captured["model"])
		assert.Equal(t, false, captured["stream"])
		assert.EqualValues(t, 500, captured["max_tokens"])
		assert.EqualValues(t, 0.7, captured["temperature"])

		messages := captured["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		assert.Equal(t, "What is 2+2?", messages[1].(map[string]any)["content"])
	})

	t.Run("Request model overrides the default", func(t *testing.T) {
		var model string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Model string `json:"model"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			model = body.Model
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
		}))
		defer server.Close()

		_, err := llm.NewClient(testConfig(server.URL)).Complete(context.Background(), llm.Request{Prompt: "x", Model: "other"})
		require.NoError(t, err)
		assert.Equal(t, "other", model)
	})

	statusCases := []struct {
		name    string
		status  int
		body    string
		want    string
		failure llm.Failure
	}{
		{"401 maps to the auth message", http.StatusUnauthorized, `{"error":"bad key"}`, llm.AuthFailureMessage, llm.FailureAuth},
		{"429 maps to the rate limit message", http.StatusTooManyRequests, `{}`, llm.RateLimitedMessage, llm.FailureRateLimited},
		{"500 maps to the unavailable message", http.StatusInternalServerError, `oops`, llm.UnavailableMessage, llm.FailureUnavailable},
		{"Malformed success maps to unavailable", http.StatusOK, `not json`, llm.UnavailableMessage, llm.FailureUnavailable},
		{"Missing choices maps to unavailable", http.StatusOK, `{"choices":[]}`, llm.UnavailableMessage, llm.FailureUnavailable},
	}
	for _, tc := range statusCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			reply, err := llm.NewClient(testConfig(server.URL)).Complete(context.Background(), llm.Request{Prompt: "x"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, reply.Text)
			assert.Equal(t, tc.failure, reply.Failure)
		})
	}

	t.Run("Timeout returns a greeting-prefixed apology", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		cfg := testConfig(server.URL)
		cfg.Timeout = 50 * time.Millisecond
		reply, err := llm.NewClient(cfg).Complete(context.Background(), llm.Request{Prompt: "x", Greeting: "Good evening"})

		require.NoError(t, err)
		assert.Equal(t, llm.FailureTimeout, reply.Failure)
		assert.True(t, strings.HasPrefix(reply.Text, "Good evening! "))
		assert.Contains(t, reply.Text, "taking too long")
	})

	t.Run("Connection failure returns a greeting-prefixed apology", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		reply, err := llm.NewClient(testConfig(url)).Complete(context.Background(), llm.Request{Prompt: "x", Greeting: "Good morning"})

		require.NoError(t, err)
		assert.Equal(t, llm.FailureUnreachable, reply.Failure)
		assert.True(t, strings.HasPrefix(reply.Text, "Good morning! "))
		assert.Contains(t, reply.Text, "not connected")
	})

	t.Run("Canceled caller context is returned as an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := llm.NewClient(testConfig(server.URL)).Complete(ctx, llm.Request{Prompt: "x"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Stream bool `json:"stream"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			_, _ = fmt.Fprint(w, line)
			flusher.Flush()
		}
	}))
}

func delta(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": content}, "finish_reason": nil}},
	})
	return "data: " + string(b) + "\n\n"
}

func TestClient_Stream(t *testing.T) {
	t.Run("Yields deltas and stops at DONE", func(t *testing.T) {
		server := sseServer(t,
			delta("Two"),
			delta(" plus two"),
			delta(" is four."),
			"data: [DONE]\n\n",
			delta(" never seen"),
		)
		defer server.Close()

		stream, err := llm.NewClient(testConfig(server.URL)).Stream(context.Background(), llm.Request{Prompt: "x"})
		require.NoError(t, err)
		out, err := drain(t, stream)

		require.NoError(t, err)
		assert.Equal(t, []string{"Two", " plus two", " is four."}, out)
	})

	t.Run("Tolerates noise lines and bad JSON", func(t *testing.T) {
		server := sseServer(t,
			": keep-alive comment\n",
			"\n",
			"event: message\n",
			"data: {not json}\n",
			delta("Hello"),
			"data: {\"choices\":[]}\n",
			delta(" world"),
		)
		defer server.Close()

		stream, err := llm.NewClient(testConfig(server.URL)).Stream(context.Background(), llm.Request{Prompt: "x"})
		require.NoError(t, err)
		out, err := drain(t, stream)

		require.NoError(t, err)
		assert.Equal(t, []string{"Hello", " world"}, out)
	})

	t.Run("finish_reason ends the stream after its content", func(t *testing.T) {
		server := sseServer(t,
			delta("Done"),
			`data: {"choices":[{"delta":{"content":"!"},"finish_reason":"stop"}]}`+"\n\n",
			delta(" trailing"),
		)
		defer server.Close()

		stream, err := llm.NewClient(testConfig(server.URL)).Stream(context.Background(), llm.Request{Prompt: "x"})
		require.NoError(t, err)
		out, err := drain(t, stream)

		require.NoError(t, err)
		assert.Equal(t, []string{"Done", "!"}, out)
	})

	t.Run("Non-200 becomes a single failure fragment", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		stream, err := llm.NewClient(testConfig(server.URL)).Stream(context.Background(), llm.Request{Prompt: "x"})
		require.NoError(t, err)
		out, err := drain(t, stream)

		require.NoError(t, err)
		assert.Equal(t, []string{llm.RateLimitedMessage}, out)
	})

	t.Run("Unreachable upstream becomes a single failure fragment", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		stream, err := llm.NewClient(testConfig(url)).Stream(context.Background(), llm.Request{Prompt: "x", Greeting: "Hi there"})
		require.NoError(t, err)
		out, err := drain(t, stream)

		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.True(t, strings.HasPrefix(out[0], "Hi there! "))
	})

	t.Run("Idle upstream is cut off", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = fmt.Fprint(w, delta("Thinking"))
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		defer server.Close()

		cfg := testConfig(server.URL)
		cfg.StreamIdleTimeout = 100 * time.Millisecond
		stream, err := llm.NewClient(cfg).Stream(context.Background(), llm.Request{Prompt: "x"})
		require.NoError(t, err)
		out, err := drain(t, stream)

		assert.ErrorIs(t, err, llm.ErrStreamIdle)
		assert.Equal(t, []string{"Thinking"}, out)
	})
}

func TestClient_ListModels(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"Bare array", `[{"id":"m1","type":"chat"},{"id":"m2"}]`},
		{"Data envelope", `{"object":"list","data":[{"id":"m1"},{"id":"m2"}]}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/models", r.URL.Path)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			models, err := llm.NewClient(testConfig(server.URL)).ListModels(context.Background())
			require.NoError(t, err)
			require.Len(t, models, 2)
			assert.Equal(t, "m1", models[0].ID)
			assert.Equal(t, "m2", models[1].ID)
		})
	}

	t.Run("Non-200 is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		_, err := llm.NewClient(testConfig(server.URL)).ListModels(context.Background())
		assert.Error(t, err)
	})
}
