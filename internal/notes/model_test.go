package notes

import (
	"errors"
	"strings"
	"testing"
)

func TestNewText(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "trimmed", input: "  hello  ", want: "hello"},
		{name: "blank", input: " \t\n", wantErr: ErrEmptyText},
		{name: "max-runes", input: strings.Repeat("é", MaxTextLength), want: strings.Repeat("é", MaxTextLength)},
		{name: "too-long", input: strings.Repeat("a", MaxTextLength+1), wantErr: ErrTextTooLong},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			text, err := NewText(testCase.input)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("expected %v, got %v", testCase.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if text.String() != testCase.want {
				t.Fatalf("unexpected text %q", text)
			}
		})
	}
}

func TestIdentifierValidation(t *testing.T) {
	if _, err := NewNoteID("   "); !errors.Is(err, ErrInvalidNoteID) {
		t.Fatalf("expected invalid note id, got %v", err)
	}
	if _, err := NewUserID(strings.Repeat("u", 191)); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected invalid user id, got %v", err)
	}
	categoryID, err := NewCategoryID(" cat-self ")
	if err != nil {
		t.Fatalf("unexpected category error: %v", err)
	}
	if categoryID.String() != "cat-self" {
		t.Fatalf("expected trimmed category, got %q", categoryID)
	}
}

func TestUUIDProviderIssuesDistinctIDs(t *testing.T) {
	provider := NewUUIDProvider()
	first, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected id error: %v", err)
	}
	second, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected id error: %v", err)
	}
	if first == second || len(first) != 36 {
		t.Fatalf("unexpected ids %q %q", first, second)
	}
}
