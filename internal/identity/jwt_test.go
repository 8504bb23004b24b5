package identity

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkwellhq/inkwell/internal/clock"
	"github.com/inkwellhq/inkwell/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	provider := NewProvider(config.Config{AuthJWTSecret: "test-secret"}, clk)

	userID := snowflake.ID(1234567890)
	token, err := provider.IssueToken(userID, "editor@press.test")
	require.NoError(t, err)

	identity, err := provider.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, "editor@press.test", identity.Email)
}

func TestVerifyRejectsExpiredAndForeign(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	provider := NewProvider(config.Config{AuthJWTSecret: "test-secret"}, clk)

	token, err := provider.IssueToken(snowflake.ID(42), "a@press.test")
	require.NoError(t, err)

	clk.Advance(25 * time.Hour)
	_, err = provider.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other := NewProvider(config.Config{AuthJWTSecret: "other-secret"}, clk)
	foreign, err := other.IssueToken(snowflake.ID(42), "a@press.test")
	require.NoError(t, err)
	_, err = provider.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = provider.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
