package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaptask/zaptask/pkg/cache"
)

func testBlacklist(t *testing.T) (*TokenBlacklist, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := &cache.Client{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	return NewTokenBlacklist(client), mr
}

func TestTokenBlacklist_AddAndCheck(t *testing.T) {
	bl, _ := testBlacklist(t)
	ctx := context.Background()

	token := "some.jwt.token"
	revoked, err := bl.IsBlacklisted(ctx, token)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.Add(ctx, token, time.Hour))

	revoked, err = bl.IsBlacklisted(ctx, token)
	require.NoError(t, err)
	assert.True(t, revoked)

	// Another token is unaffected.
	revoked, err = bl.IsBlacklisted(ctx, "other.jwt.token")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestTokenBlacklist_EntryExpires(t *testing.T) {
	bl, mr := testBlacklist(t)
	ctx := context.Background()

	token := "expiring.jwt.token"
	require.NoError(t, bl.Add(ctx, token, time.Minute))

	mr.FastForward(2 * time.Minute)

	revoked, err := bl.IsBlacklisted(ctx, token)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestValidateJWTWithBlacklist_RejectsRevokedToken(t *testing.T) {
	bl, _ := testBlacklist(t)
	ctx := context.Background()
	secret := "test-secret"

	token, err := GenerateJWT(uuid.New(), uuid.New(), "user@acme.test", secret, 1)
	require.NoError(t, err)

	claims, err := ValidateJWTWithBlacklist(ctx, token, secret, bl)
	require.NoError(t, err)
	assert.Equal(t, "user@acme.test", claims.Email)

	require.NoError(t, bl.Add(ctx, token, time.Hour))

	_, err = ValidateJWTWithBlacklist(ctx, token, secret, bl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revoked")
}

func TestValidateJWT_RejectsWrongSecret(t *testing.T) {
	token, err := GenerateJWT(uuid.New(), uuid.New(), "user@acme.test", "right-secret", 1)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "wrong-secret")
	assert.Error(t, err)
}

func TestValidateJWT_RoundTripsClaims(t *testing.T) {
	userID := uuid.New()
	companyID := uuid.New()

	token, err := GenerateJWT(userID, companyID, "user@acme.test", "secret", 24)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, companyID, claims.CompanyID)
	assert.Equal(t, "user@acme.test", claims.Email)
}
