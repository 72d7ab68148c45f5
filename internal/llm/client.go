package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Provider is the contract the chat service depends on.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Reply, error)
	Stream(ctx context.Context, req Request) (FragmentStream, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Config is the immutable upstream configuration.
type Config struct {
	BaseURL              string
	APIKey               string
	Model                string
	Temperature          float64
	MaxTokens            int
	TopP                 float64
	FrequencyPenalty     float64
	PresencePenalty      float64
	Timeout              time.Duration
	StreamConnectTimeout time.Duration
	StreamIdleTimeout    time.Duration
}

// Request is one generation call.
type Request struct {
	Prompt string
	// Persona is sent as the system message.
	Persona string
	// Greeting prefixes the timeout and connection failure messages.
	Greeting string
	// Model overrides Config.Model when set.
	Model string
}

// Reply is the outcome of a blocking call.
type Reply struct {
	Text    string
	Failure Failure
}

// ModelInfo describes one model offered by the upstream.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
	Type    string `json:"type,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	MaxTokens        int           `json:"max_tokens"`
	TopP             float64       `json:"top_p"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
	PresencePenalty  float64       `json:"presence_penalty"`
	Stream           bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const chatPath = "/chat/completions"

// Client talks to an OpenAI-compatible chat-completions API.
type Client struct {
	cfg    Config
	http   *resty.Client
	stream *resty.Client
}

// NewClient builds two resty clients: one with an overall deadline for
// blocking calls, and one that only bounds the wait for response headers so
// a long stream is not cut off mid-answer.
func NewClient(cfg Config) *Client {
	blocking := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.StreamConnectTimeout
	streaming := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTransport(transport).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream")

	if cfg.APIKey != "" {
		blocking.SetAuthToken(cfg.APIKey)
		streaming.SetAuthToken(cfg.APIKey)
	}

	return &Client{cfg: cfg, http: blocking, stream: streaming}
}

func (c *Client) body(req Request, stream bool) chatRequest {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	messages := make([]chatMessage, 0, 2)
	if req.Persona != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.Persona})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	return chatRequest{
		Model:            model,
		Messages:         messages,
		Temperature:      c.cfg.Temperature,
		MaxTokens:        c.cfg.MaxTokens,
		TopP:             c.cfg.TopP,
		FrequencyPenalty: c.cfg.FrequencyPenalty,
		PresencePenalty:  c.cfg.PresencePenalty,
		Stream:           stream,
	}
}

// Complete performs a blocking call. Expected upstream failures come back as
// a Reply carrying learner-facing text; an error is returned only when the
// caller's own context ended.
func (c *Client) Complete(ctx context.Context, req Request) (*Reply, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(c.body(req, false)).
		Post(chatPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return c.transportFailure(err, req.Greeting), nil
	}

	if resp.StatusCode() != http.StatusOK {
		f := statusFailure(resp.StatusCode())
		slog.Warn("Upstream returned non-200 status", "status_code", resp.StatusCode(), "failure", f.String(), "body", truncateBody(resp.Body()))
		return &Reply{Text: failureText(f, req.Greeting), Failure: f}, nil
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil || len(parsed.Choices) == 0 {
		slog.Warn("Upstream returned a malformed completion", "error", err, "body", truncateBody(resp.Body()))
		return &Reply{Text: UnavailableMessage, Failure: FailureUnavailable}, nil
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		slog.Warn("Upstream returned an empty completion")
		return &Reply{Text: UnavailableMessage, Failure: FailureUnavailable}, nil
	}
	return &Reply{Text: text}, nil
}

func (c *Client) transportFailure(err error, greeting string) *Reply {
	f := FailureUnreachable
	if isTimeout(err) {
		f = FailureTimeout
	}
	slog.Warn("Upstream request failed", "failure", f.String(), "error", err)
	return &Reply{Text: failureText(f, greeting), Failure: f}
}

// ListModels returns the models the upstream offers. It accepts both the
// OpenAI {"data": [...]} envelope and a bare array.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/models")
	if err != nil {
		return nil, fmt.Errorf("could not list models: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("model listing returned status %d", resp.StatusCode())
	}

	body := resp.Body()
	var models []ModelInfo
	if err := json.Unmarshal(body, &models); err == nil {
		return models, nil
	}
	var envelope struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("could not decode model list: %w", err)
	}
	return envelope.Data, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
