package signals

import (
	"errors"
	"testing"
	"time"
)

func TestPolicySignalPerAction(t *testing.T) {
	now := time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC)
	policy := NewPolicy(Config{Clock: func() time.Time { return now }})

	testCases := []struct {
		name    string
		action  Action
		context Context
		want    string
	}{
		{name: "post-question", action: ActionPostQuestion, context: Context{CategoryID: "cat-self"}, want: "cat-self:2025-01-01"},
		{name: "post-answer", action: ActionPostAnswer, context: Context{QuestionID: "q-1"}, want: "q-1:2025-01-01"},
		{name: "accept-answer", action: ActionAcceptAnswer, context: Context{QuestionID: "q-1"}, want: "q-1"},
		{name: "like-first-generation", action: ActionLikeNote, context: Context{NoteID: "n1"}, want: "n1"},
		{name: "like-after-unlike", action: ActionLikeNote, context: Context{NoteID: "n1", LikeGeneration: 2}, want: "n1:g2"},
		{name: "view", action: ActionViewNote, context: Context{NoteID: "n1"}, want: "n1:2025-01-01"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			signal, err := policy.Signal(testCase.action, testCase.context)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if signal != testCase.want {
				t.Fatalf("unexpected signal: got %q want %q", signal, testCase.want)
			}
		})
	}
}

func TestPolicySignalRejectsMissingContext(t *testing.T) {
	policy := NewPolicy(Config{})
	if _, err := policy.Signal(ActionPostQuestion, Context{CategoryID: "   "}); !errors.Is(err, ErrMissingContext) {
		t.Fatalf("expected missing context error, got %v", err)
	}
	if _, err := policy.Signal(ActionLikeNote, Context{}); !errors.Is(err, ErrMissingContext) {
		t.Fatalf("expected missing context error, got %v", err)
	}
	if _, err := policy.Signal(Action("vote"), Context{NoteID: "n1"}); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected unknown action error, got %v", err)
	}
}

func TestPolicyDayBucketHonoursLocation(t *testing.T) {
	instant := time.Date(2025, 1, 1, 23, 30, 0, 0, time.UTC)
	location := time.FixedZone("UTC+2", 2*60*60)
	policy := NewPolicy(Config{Clock: func() time.Time { return instant }, Location: location})

	if bucket := policy.DayBucket(); bucket != "2025-01-02" {
		t.Fatalf("expected the next calendar day in UTC+2, got %s", bucket)
	}
}

func TestParseAction(t *testing.T) {
	action, err := ParseAction(" Like-Note ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != ActionLikeNote {
		t.Fatalf("unexpected action %s", action)
	}
	if _, err := ParseAction("unlike-note"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected unknown action error, got %v", err)
	}
}
