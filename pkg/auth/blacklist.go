package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/zaptask/zaptask/pkg/cache"
)

const blacklistKeyPrefix = "jwt:blacklist:"

// TokenBlacklist revokes JWTs before their natural expiry. The entitlement
// gate pushes tokens here when a workspace exceeds its plan limits, so a
// denied session cannot keep riding a still-valid token.
type TokenBlacklist struct {
	cache *cache.Client
}

// NewTokenBlacklist creates a blacklist backed by the given redis client
func NewTokenBlacklist(cache *cache.Client) *TokenBlacklist {
	return &TokenBlacklist{cache: cache}
}

// Add revokes a token until the given expiration. Only the token's SHA-256
// digest is stored, never the token itself.
func (b *TokenBlacklist) Add(ctx context.Context, token string, expiration time.Duration) error {
	return b.cache.Set(ctx, blacklistKeyPrefix+hashToken(token), "revoked", expiration)
}

// IsBlacklisted reports whether the token has been revoked
func (b *TokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return b.cache.Exists(ctx, blacklistKeyPrefix+hashToken(token))
}

func hashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
