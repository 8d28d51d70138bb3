package api

import (
	"context"
	"testing"

	"louyass/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := GetUser(ctx)
	assert.False(t, ok)
	assert.Empty(t, GetRequestID(ctx))

	u := &core.User{ID: 7, Email: "awa@louyass.test", Role: core.RoleTenant}
	ctx = WithUser(ctx, u)
	ctx = WithClaims(ctx, &Claims{UserID: 7, Role: core.RoleTenant})
	ctx = WithRequestID(ctx, "req-1")

	got, ok := GetUser(ctx)
	require.True(t, ok)
	assert.Same(t, u, got)

	claims, ok := GetClaims(ctx)
	require.True(t, ok)
	assert.EqualValues(t, 7, claims.UserID)
	assert.Equal(t, "req-1", GetRequestID(ctx))
}

// A plain string key with the same text must not shadow the typed key.
func TestContextKeyCollisionPrevention(t *testing.T) {
	ctx := WithUser(context.Background(), &core.User{ID: 1, Role: core.RoleTenant})
	//nolint:staticcheck // deliberate string key
	ctx = context.WithValue(ctx, "user", &core.User{ID: 99, Role: core.RoleOwner})

	got, ok := GetUser(ctx)
	require.True(t, ok)
	assert.EqualValues(t, 1, got.ID)

	//nolint:staticcheck // deliberate string key
	forged := context.WithValue(context.Background(), "user", &core.User{ID: 99})
	_, ok = GetUser(forged)
	assert.False(t, ok)
}

func TestGetUserNil(t *testing.T) {
	ctx := WithUser(context.Background(), nil)
	_, ok := GetUser(ctx)
	assert.False(t, ok)
}
