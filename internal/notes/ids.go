package notes

import (
	"fmt"

	"github.com/google/uuid"
)

// IDProvider issues identifiers for new notes and ledger rows.
type IDProvider interface {
	NewID() (string, error)
}

// UUIDProvider issues time-ordered UUIDv7 identifiers.
type UUIDProvider struct{}

// NewUUIDProvider returns the default IDProvider.
func NewUUIDProvider() UUIDProvider {
	return UUIDProvider{}
}

// NewID implements IDProvider.
func (UUIDProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("notes: generate id: %w", err)
	}
	return value.String(), nil
}
