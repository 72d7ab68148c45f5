package llm

import "fmt"

// Failure classifies why an upstream call did not produce a normal answer.
// Every failure still yields learner-facing text; the kind is kept for logs.
type Failure int

const (
	FailureNone Failure = iota
	FailureAuth
	FailureRateLimited
	FailureUnavailable
	FailureTimeout
	FailureUnreachable
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureAuth:
		return "auth"
	case FailureRateLimited:
		return "rate_limited"
	case FailureUnavailable:
		return "unavailable"
	case FailureTimeout:
		return "timeout"
	case FailureUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

const (
	AuthFailureMessage  = "I'm having trouble accessing my teaching tools right now. Please contact support if this keeps happening."
	RateLimitedMessage  = "I'm helping a lot of students right now. Please try again in a moment."
	UnavailableMessage  = "I'm sorry, I couldn't come up with an answer right now. Please try again later."
	timeoutTemplate     = "%s! I'm taking too long to think about this one. Please try asking again."
	unreachableTemplate = "%s! I'm not connected to my knowledge source right now. Please check back soon."
)

// failureText renders the learner-facing message for f. Timeout and
// connection failures are prefixed with the caller's greeting.
func failureText(f Failure, greeting string) string {
	if greeting == "" {
		greeting = "Hello"
	}
	switch f {
	case FailureAuth:
		return AuthFailureMessage
	case FailureRateLimited:
		return RateLimitedMessage
	case FailureTimeout:
		return fmt.Sprintf(timeoutTemplate, greeting)
	case FailureUnreachable:
		return fmt.Sprintf(unreachableTemplate, greeting)
	default:
		return UnavailableMessage
	}
}

// TimeoutMessage is the learner-facing text for a reply that took too long.
func TimeoutMessage(greeting string) string {
	return failureText(FailureTimeout, greeting)
}

// statusFailure maps a non-200 status code to its failure kind.
func statusFailure(code int) Failure {
	switch code {
	case 401:
		return FailureAuth
	case 429:
		return FailureRateLimited
	default:
		return FailureUnavailable
	}
}
