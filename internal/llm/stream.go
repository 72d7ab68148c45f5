package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrStreamIdle is returned by FragmentStream.Next when the upstream sent
// nothing for longer than the configured idle timeout.
var ErrStreamIdle = errors.New("upstream stream idle timeout")

// FragmentStream is a forward-only, non-restartable sequence of text
// fragments. Next returns io.EOF once the upstream signals completion.
// Close must always be called and is safe to call more than once.
type FragmentStream interface {
	Next() (string, error)
	Close() error
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Stream opens an incremental completion. Like Complete, expected upstream
// failures are delivered as text: a single-fragment stream carrying the
// failure message.
func (c *Client) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	resp, err := c.stream.R().
		SetContext(streamCtx).
		SetBody(c.body(req, true)).
		SetDoNotParseResponse(true).
		Post(chatPath)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return newStaticStream(c.transportFailure(err, req.Greeting).Text), nil
	}

	raw := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(raw, 512))
		_ = raw.Close()
		cancel()
		f := statusFailure(resp.StatusCode())
		slog.Warn("Upstream stream returned non-200 status", "status_code", resp.StatusCode(), "failure", f.String(), "body", string(body))
		return newStaticStream(failureText(f, req.Greeting)), nil
	}

	return newSSEStream(raw, cancel, c.cfg.StreamIdleTimeout), nil
}

// sseStream reads "data: {json}" lines from an upstream response body.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc

	idle      time.Duration
	idleTimer *time.Timer
	idleMu    sync.Mutex
	timedOut  bool

	finished  bool
	closeOnce sync.Once
}

func newSSEStream(body io.ReadCloser, cancel context.CancelFunc, idle time.Duration) *sseStream {
	s := &sseStream{
		body:   body,
		reader: bufio.NewReader(body),
		cancel: cancel,
		idle:   idle,
	}
	if idle > 0 {
		s.idleTimer = time.AfterFunc(idle, s.onIdle)
	}
	return s
}

func (s *sseStream) onIdle() {
	s.idleMu.Lock()
	s.timedOut = true
	s.idleMu.Unlock()
	s.cancel()
}

func (s *sseStream) isTimedOut() bool {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	return s.timedOut
}

func (s *sseStream) touch() {
	if s.idleTimer != nil {
		s.idleTimer.Reset(s.idle)
	}
}

func (s *sseStream) Next() (string, error) {
	for !s.finished {
		line, readErr := s.reader.ReadString('\n')
		if line != "" {
			s.touch()
			if text, ok := s.parseLine(line); ok {
				return text, nil
			}
		}
		if readErr != nil {
			s.finished = true
			if errors.Is(readErr, io.EOF) {
				return "", io.EOF
			}
			if s.isTimedOut() {
				return "", ErrStreamIdle
			}
			return "", fmt.Errorf("upstream stream interrupted: %w", readErr)
		}
	}
	return "", io.EOF
}

// parseLine extracts a fragment from one SSE line. Blank lines, foreign
// lines and undecodable payloads are skipped.
func (s *sseStream) parseLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "[DONE]" {
		s.finished = true
		return "", false
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		slog.Debug("Skipping undecodable stream payload", "error", err)
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", false
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		s.finished = true
	}
	if choice.Delta.Content == "" {
		return "", false
	}
	return choice.Delta.Content, true
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.idleTimer != nil {
			s.idleTimer.Stop()
		}
		s.cancel()
		err = s.body.Close()
	})
	return err
}

// staticStream yields one fixed fragment.
type staticStream struct {
	text string
	done bool
}

func newStaticStream(text string) *staticStream {
	return &staticStream{text: text}
}

func (s *staticStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	s.done = true
	return s.text, nil
}

func (s *staticStream) Close() error { return nil }
