// Package pacing shapes a stream of text fragments into a human reading
// cadence. It never drops, reorders or alters characters: the concatenation
// of released fragments always equals the concatenation of the input.
package pacing

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode"
)

const (
	sentenceMarks = ".!?:;"
	phraseMarks   = ",-)}]\n"
)

// Config holds the cadence parameters. A zero Config disables pacing.
type Config struct {
	SentencePause time.Duration
	PhrasePause   time.Duration
	WordPause     time.Duration
	MinSpacing    time.Duration
	CharDelay     time.Duration
}

// DefaultConfig returns the standard reading cadence.
func DefaultConfig() Config {
	return Config{
		SentencePause: 500 * time.Millisecond,
		PhrasePause:   160 * time.Millisecond,
		WordPause:     80 * time.Millisecond,
		MinSpacing:    150 * time.Millisecond,
		CharDelay:     20 * time.Millisecond,
	}
}

// Source is a forward-only fragment sequence. Next returns io.EOF once the
// sequence is exhausted.
type Source interface {
	Next() (string, error)
}

// SliceSource adapts a fixed list of fragments to Source.
type SliceSource struct {
	fragments []string
	pos       int
}

func NewSliceSource(fragments ...string) *SliceSource {
	return &SliceSource{fragments: fragments}
}

func (s *SliceSource) Next() (string, error) {
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithSleep replaces the delay function, mostly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(p *Pacer) { p.sleep = sleep }
}

// WithClock replaces time.Now for spacing calculations.
func WithClock(now func() time.Time) Option {
	return func(p *Pacer) { p.now = now }
}

// Pacer releases buffered text at punctuation and word boundaries.
type Pacer struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time
}

func New(cfg Config, opts ...Option) *Pacer {
	p := &Pacer{cfg: cfg, sleep: sleepContext, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 || ctx.Err() != nil {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Pace reads src until it is exhausted and passes paced fragments to emit.
// ctx only bounds the delays: once it is done the remaining text is still
// released, just without waiting. A non-EOF source error is returned after
// whatever was buffered has been released.
func (p *Pacer) Pace(ctx context.Context, src Source, emit func(string)) error {
	var (
		buf         strings.Builder
		lastRelease time.Time
	)

	release := func(pause time.Duration) {
		if buf.Len() == 0 {
			return
		}
		delay := pause
		if !lastRelease.IsZero() {
			if gap := p.cfg.MinSpacing - p.now().Sub(lastRelease); gap > delay {
				delay = gap
			}
		}
		p.sleep(ctx, delay)
		emit(buf.String())
		buf.Reset()
		lastRelease = p.now()
	}

	for {
		fragment, err := src.Next()
		if err != nil {
			release(p.cfg.SentencePause)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if fragment == "" {
			continue
		}

		buf.WriteString(fragment)
		if pause, ok := p.boundary(buf.String(), fragment); ok {
			release(pause)
		}
	}
}

// boundary decides whether buffered text should be released and with which
// pause. Sentence marks win over phrase marks, which win over word breaks.
func (p *Pacer) boundary(buffered, fragment string) (time.Duration, bool) {
	last := buffered[len(buffered)-1:]
	switch {
	case strings.Contains(sentenceMarks, last):
		return p.cfg.SentencePause, true
	case strings.Contains(phraseMarks, last):
		return p.cfg.PhrasePause, true
	case strings.IndexFunc(fragment, unicode.IsSpace) >= 0:
		return p.cfg.WordPause, true
	default:
		return 0, false
	}
}

// Typewrite releases text one character at a time with a fixed delay.
func (p *Pacer) Typewrite(ctx context.Context, text string, emit func(string)) {
	for _, r := range text {
		p.sleep(ctx, p.cfg.CharDelay)
		emit(string(r))
	}
}
