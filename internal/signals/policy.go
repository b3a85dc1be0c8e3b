// Package signals derives the signal strings that bind humanity proofs to an action scope.
package signals

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action enumerates the proof-gated action kinds. The string value is the action
// identifier the proof oracle knows about.
type Action string

const (
	ActionPostQuestion Action = "post-question"
	ActionPostAnswer   Action = "post-answer"
	ActionAcceptAnswer Action = "accept-answer"
	ActionLikeNote     Action = "like-note"
	ActionViewNote     Action = "view-note"
)

const dayBucketLayout = "2006-01-02"

var (
	// ErrUnknownAction indicates the action kind has no signal scope.
	ErrUnknownAction = errors.New("signals: unknown action")
	// ErrMissingContext indicates a context identifier required by the action scope is empty.
	ErrMissingContext = errors.New("signals: missing context")
)

// ParseAction maps a raw identifier onto a known action kind.
func ParseAction(raw string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(raw)))
	switch action {
	case ActionPostQuestion, ActionPostAnswer, ActionAcceptAnswer, ActionLikeNote, ActionViewNote:
		return action, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
}

// String returns the oracle action identifier.
func (a Action) String() string {
	return string(a)
}

// Context carries the identifiers a signal scope may depend on.
type Context struct {
	CategoryID     string
	QuestionID     string
	NoteID         string
	LikeGeneration int64
}

// Config configures a Policy.
type Config struct {
	Clock    func() time.Time
	Location *time.Location
}

// Policy computes signals. It is pure given its clock and location.
type Policy struct {
	clock    func() time.Time
	location *time.Location
}

// NewPolicy constructs a Policy, defaulting to the wall clock in UTC.
func NewPolicy(cfg Config) *Policy {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	return &Policy{clock: clock, location: location}
}

// DayBucket returns the calendar date used to scope daily signals.
func (p *Policy) DayBucket() string {
	return p.clock().In(p.location).Format(dayBucketLayout)
}

// Signal returns the signal the proof for action must have been generated with.
func (p *Policy) Signal(action Action, ctx Context) (string, error) {
	switch action {
	case ActionPostQuestion:
		categoryID, err := required("category id", ctx.CategoryID)
		if err != nil {
			return "", err
		}
		return categoryID + ":" + p.DayBucket(), nil
	case ActionPostAnswer:
		questionID, err := required("question id", ctx.QuestionID)
		if err != nil {
			return "", err
		}
		return questionID + ":" + p.DayBucket(), nil
	case ActionAcceptAnswer:
		return required("question id", ctx.QuestionID)
	case ActionLikeNote:
		noteID, err := required("note id", ctx.NoteID)
		if err != nil {
			return "", err
		}
		if ctx.LikeGeneration <= 0 {
			return noteID, nil
		}
		return fmt.Sprintf("%s:g%d", noteID, ctx.LikeGeneration), nil
	case ActionViewNote:
		noteID, err := required("note id", ctx.NoteID)
		if err != nil {
			return "", err
		}
		return noteID + ":" + p.DayBucket(), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

func required(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingContext, name)
	}
	return trimmed, nil
}
