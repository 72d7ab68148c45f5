package prompt

import "strings"

// greetingTokens is matched as a plain substring, so "this" counts as "hi".
var greetingTokens = []string{
	"hello",
	"hi",
	"hey",
	"howdy",
	"greetings",
	"good morning",
	"good afternoon",
	"good evening",
	"good night",
	"how are you",
	"what's up",
}

// IsGreeting reports whether text contains any greeting token, ignoring case
// and surrounding whitespace.
func IsGreeting(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	for _, token := range greetingTokens {
		if strings.Contains(t, token) {
			return true
		}
	}
	return false
}
