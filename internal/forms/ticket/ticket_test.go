package ticket

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fishtank/internal/forms/models"
	"fishtank/pkg/domain"
	dErrors "fishtank/pkg/domain-errors"
)

const key = "test-signing-key-0123456789"

func TestIssueVerify(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	clock := func() time.Time { return now }
	svc := New(key, time.Hour, WithClock(clock))
	sess := models.NewSession(domain.NewInstanceID(), models.FormApply, models.RoleCreator, now, time.Hour)

	raw, err := svc.Issue(sess)
	require.NoError(t, err)

	t.Run("round trip keeps mount time to the millisecond", func(t *testing.T) {
		v, err := svc.Verify(raw)
		require.NoError(t, err)
		assert.Equal(t, sess.InstanceID, v.InstanceID)
		assert.Equal(t, models.FormApply, v.Form)
		assert.True(t, now.Equal(v.MountedAt))
	})

	t.Run("expired", func(t *testing.T) {
		later := New(key, time.Hour, WithClock(func() time.Time { return now.Add(2 * time.Hour) }))
		_, err := later.Verify(raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTicket))
		assert.ErrorContains(t, err, "expired")
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := New("another-signing-key-9876543210", time.Hour, WithClock(clock)).Verify(raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTicket))
	})

	t.Run("tampered", func(t *testing.T) {
		_, err := svc.Verify(raw + "x")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTicket))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := svc.Verify("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTicket))
	})

	t.Run("foreign audience", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			Form: "apply",
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        sess.InstanceID.String(),
				Issuer:    Issuer,
				Audience:  jwt.ClaimStrings{"someone-else"},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		})
		foreign, err := token.SignedString([]byte(key))
		require.NoError(t, err)
		_, err = svc.Verify(foreign)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTicket))
	})

	t.Run("unknown form", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			Form: "contact",
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        sess.InstanceID.String(),
				Issuer:    Issuer,
				Audience:  jwt.ClaimStrings{Audience},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		})
		forged, err := token.SignedString([]byte(key))
		require.NoError(t, err)
		_, err = svc.Verify(forged)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTicket))
	})
}
