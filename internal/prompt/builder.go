package prompt

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/anooppandey17/virtual-teacher/internal/model"
)

const (
	// HistoryWindow is the number of prior messages rendered into a prompt.
	HistoryWindow = 10
	// HistoryTextLimit is the rune count after which a prior message is cut.
	HistoryTextLimit = 200

	historyHeader   = "Previous conversation:"
	personaPreamble = "You are a friendly, patient teacher helping a student learn."
)

var greetingsByBand = map[string][]string{
	"morning":   {"Good morning", "Morning", "Rise and shine"},
	"afternoon": {"Good afternoon", "Hello there", "Hope your day is going well"},
	"evening":   {"Good evening", "Evening", "Hello this evening"},
	"night":     {"Hello", "Hi there", "Working late"},
}

var followUps = []string{
	"What would you like to learn about today?",
	"What topic shall we explore together?",
	"Is there a question I can help you with?",
	"What are you curious about right now?",
}

var closingDirectives = []string{
	"Keep the answer concise and focused on the question.",
	"Build on the previous conversation instead of repeating it.",
	"Do not open with filler such as \"Great question\" or repeat the greeting.",
}

// Input is everything Build needs to produce an upstream prompt.
type Input struct {
	Question string
	Grade    string
	History  []model.Message
}

// Option configures a Builder.
type Option func(*Builder)

// WithRand makes greeting selection deterministic.
func WithRand(r *rand.Rand) Option {
	return func(b *Builder) { b.rnd = r }
}

// WithClock replaces time.Now for greeting band selection.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// Builder assembles upstream prompts and canned greeting replies.
// It is safe for concurrent use.
type Builder struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// band maps a local hour to its greeting band.
func band(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}

func (b *Builder) pick(options []string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return options[b.rnd.Intn(len(options))]
}

// TimeGreeting returns a salutation for the current time of day.
func (b *Builder) TimeGreeting() string {
	return b.pick(greetingsByBand[band(b.now().Hour())])
}

// GreetingReply is the canned reply used when a learner only says hello.
func (b *Builder) GreetingReply() string {
	return fmt.Sprintf("%s! %s", b.TimeGreeting(), b.pick(followUps))
}

// FormatHistory renders the last HistoryWindow messages, oldest first.
// An empty history renders as the empty string, without a header.
func FormatHistory(history []model.Message) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}

	lines := make([]string, 0, len(history)+1)
	lines = append(lines, historyHeader)
	for _, msg := range history {
		speaker := "Student"
		if msg.Role == model.MessageRoleAssistant {
			speaker = "Teacher"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, truncate(msg.Text, HistoryTextLimit)))
	}
	return strings.Join(lines, "\n")
}

// Build produces the full prompt for a substantive question.
func (b *Builder) Build(in Input) string {
	var sb strings.Builder
	sb.WriteString(b.TimeGreeting())
	sb.WriteString("! ")
	sb.WriteString(personaPreamble)
	sb.WriteString("\n\n")
	sb.WriteString(GradeInstruction(in.Grade))
	sb.WriteString("\n\n")

	if h := FormatHistory(in.History); h != "" {
		sb.WriteString(h)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Current question: ")
	sb.WriteString(strings.TrimSpace(in.Question))
	sb.WriteString("\n\nGuidelines:\n")
	for _, d := range closingDirectives {
		sb.WriteString("- ")
		sb.WriteString(d)
		sb.WriteString("\n")
	}
	return sb.String()
}

// truncate shortens s to n runes and marks the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
