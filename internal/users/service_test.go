package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&WalletUser{}); err != nil {
		t.Fatalf("failed to migrate wallet schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveWalletAddressCanonicalizesAndRegisters(t *testing.T) {
	service, db := newTestService(t)
	claims := auth.SessionClaims{WalletAddress: "  0xABCDEFabcdef0123456789ABCDEF0123456789ab "}

	address, err := service.ResolveWalletAddress(context.Background(), claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if address != "0xabcdefabcdef0123456789abcdef0123456789ab" {
		t.Fatalf("expected lowercase address, got %q", address)
	}

	address, err = service.ResolveWalletAddress(context.Background(), claims)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if address != "0xabcdefabcdef0123456789abcdef0123456789ab" {
		t.Fatalf("expected canonical address to remain stable, got %q", address)
	}

	var count int64
	if err := db.Model(&WalletUser{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count wallets: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one registered wallet, got %d", count)
	}
}

func TestNormalizeAddress(t *testing.T) {
	testCases := []struct {
		input string
		valid bool
	}{
		{input: "0x0000000000000000000000000000000000000001", valid: true},
		{input: "0X00000000000000000000000000000000000000AA", valid: true},
		{input: "0000000000000000000000000000000000000001", valid: false},
		{input: "0x123", valid: false},
		{input: "0xzz00000000000000000000000000000000000001", valid: false},
		{input: "", valid: false},
	}
	for _, testCase := range testCases {
		_, err := NormalizeAddress(testCase.input)
		if testCase.valid && err != nil {
			t.Fatalf("expected %q to be valid: %v", testCase.input, err)
		}
		if !testCase.valid && !errors.Is(err, ErrInvalidWalletAddress) {
			t.Fatalf("expected %q to be rejected, got %v", testCase.input, err)
		}
	}
}
