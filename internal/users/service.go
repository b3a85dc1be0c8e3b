package users

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/auth"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ServiceConfig describes the dependencies required for wallet identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service canonicalizes session wallet addresses and records when they were seen.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// ResolveWalletAddress returns the canonical address carried by the session claims.
// The first resolution of an address registers it; later ones are served from cache.
func (s *Service) ResolveWalletAddress(ctx context.Context, claims auth.SessionClaims) (string, error) {
	address, err := NormalizeAddress(claims.WalletAddress)
	if err != nil {
		return "", err
	}
	if _, ok := s.cache.Load(address); ok {
		return address, nil
	}

	now := s.now().UTC()
	record := WalletUser{Address: address, FirstSeenAt: now, LastSeenAt: now}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoUpdates: clause.Assignments(map[string]any{"last_seen_at": now}),
		}).
		Create(&record).Error
	if err != nil {
		return "", fmt.Errorf("users: register wallet: %w", err)
	}

	s.cache.Store(address, struct{}{})
	return address, nil
}
