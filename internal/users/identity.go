package users

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidWalletAddress indicates the address is not a 0x-prefixed 20-byte hex string.
var ErrInvalidWalletAddress = errors.New("users: invalid wallet address")

const walletAddressHexLength = 40

// WalletUser records a wallet address that has authenticated against the API.
type WalletUser struct {
	Address     string    `gorm:"column:address;primaryKey;size:42;not null"`
	FirstSeenAt time.Time `gorm:"column:first_seen_at;not null"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;not null"`
}

// TableName exposes the table backing wallet users.
func (WalletUser) TableName() string {
	return "wallet_users"
}

// NormalizeAddress returns the canonical lowercase form of a wallet address.
func NormalizeAddress(raw string) (string, error) {
	address := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(address, "0x") || len(address) != walletAddressHexLength+2 {
		return "", ErrInvalidWalletAddress
	}
	for _, r := range address[2:] {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", ErrInvalidWalletAddress
		}
	}
	return address, nil
}
