package intercept

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPromptUnavailable is returned by PromptDecider when no one picks up a
// prompt in time. The job is then rejected.
var ErrPromptUnavailable = errors.New("no prompt handler available")

// Decision is the answer to a failed synthesis call.
type Decision int

const (
	// Retry re-inserts the job at the head of the queue.
	Retry Decision = iota
	// Skip resolves the caller with an empty response.
	Skip
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Skip:
		return "skip"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// ParseDecision parses "retry" or "skip".
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "retry":
		return Retry, nil
	case "skip":
		return Skip, nil
	default:
		return 0, fmt.Errorf("unknown decision %q", s)
	}
}

// Failure describes a failed synthesis call.
type Failure struct {
	ConversationID string
	MessageID      string
	Snippet        string // message text shown to the user
	Err            error
	Attempt        int // 1 for the first try
}

// Decider chooses what happens to a failed job. An error means the choice
// could not be obtained; the job is rejected.
type Decider interface {
	Decide(ctx context.Context, f Failure) (Decision, error)
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, f Failure) (Decision, error)

// Decide calls fn(ctx, f).
func (fn DeciderFunc) Decide(ctx context.Context, f Failure) (Decision, error) {
	return fn(ctx, f)
}

// PolicyDecider answers without asking anyone: it retries up to MaxRetries
// times and then skips. SkipAlways skips every failure.
type PolicyDecider struct {
	MaxRetries int
	SkipAlways bool
}

// Decide implements Decider.
func (p PolicyDecider) Decide(_ context.Context, f Failure) (Decision, error) {
	if p.SkipAlways || f.Attempt > p.MaxRetries {
		return Skip, nil
	}
	return Retry, nil
}

// Prompt is one pending retry/skip question.
type Prompt struct {
	Failure Failure
	reply   chan Decision
}

// Answer delivers the user's choice. Only the first answer counts.
func (p Prompt) Answer(d Decision) {
	select {
	case p.reply <- d:
	default:
	}
}

// PromptDecider hands failures to an interactive front end and waits for the
// user's answer. There is no timeout on the answer itself, only on someone
// picking the prompt up.
type PromptDecider struct {
	prompts chan Prompt
	timeout time.Duration
}

// NewPromptDecider creates a decider whose prompts must be received within
// displayTimeout. Zero waits forever.
func NewPromptDecider(displayTimeout time.Duration) *PromptDecider {
	return &PromptDecider{
		prompts: make(chan Prompt),
		timeout: displayTimeout,
	}
}

// Prompts returns the channel front ends receive prompts from.
func (p *PromptDecider) Prompts() <-chan Prompt { return p.prompts }

// Decide implements Decider.
func (p *PromptDecider) Decide(ctx context.Context, f Failure) (Decision, error) {
	prompt := Prompt{Failure: f, reply: make(chan Decision, 1)}

	var timeout <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case p.prompts <- prompt:
	case <-timeout:
		return 0, ErrPromptUnavailable
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case d := <-prompt.reply:
		return d, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
