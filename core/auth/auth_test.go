package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T, ttl time.Duration) *TokenIssuer {
	t.Helper()
	hash, err := HashSecret("s3cret")
	require.NoError(t, err)
	issuer, err := NewTokenIssuer("jwt-key", ttl, "bot", hash)
	require.NoError(t, err)
	return issuer
}

func TestExchangeAndParse(t *testing.T) {
	issuer := newIssuer(t, time.Hour)

	token, expires, err := issuer.Exchange("bot", "s3cret")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := issuer.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "bot", claims.ClientID)
}

func TestExchangeRejectsBadCredentials(t *testing.T) {
	issuer := newIssuer(t, time.Hour)

	_, _, err := issuer.Exchange("bot", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = issuer.Exchange("other", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	noHash, err := NewTokenIssuer("jwt-key", time.Hour, "bot", "")
	require.NoError(t, err)
	_, _, err = noHash.Exchange("bot", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	issuer := newIssuer(t, time.Minute)
	token, _, err := issuer.GenerateToken("bot")
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = issuer.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewTokenIssuer("another-key", time.Hour, "bot", "")
	require.NoError(t, err)
	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.ParseToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour, "bot", "")
	assert.Error(t, err)
}
