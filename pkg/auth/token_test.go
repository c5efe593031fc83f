package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager("test-secret", "accessplane")
	require.NoError(t, err)
	return tm
}

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	_, err := NewTokenManager("", "accessplane")
	assert.Error(t, err)
}

func TestIssueAndValidate(t *testing.T) {
	tm := newTestManager(t)

	token, err := tm.IssueToken("u1", time.Hour, "Ada", "ada@example.com")
	require.NoError(t, err)

	ac, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", ac.UserID)
	assert.Equal(t, "Ada", ac.Name)
	assert.Equal(t, "ada@example.com", ac.Email)
	assert.NotEmpty(t, ac.TokenID)
	assert.True(t, ac.Authenticated())
	assert.WithinDuration(t, time.Now().Add(time.Hour), ac.ExpiresAt, 5*time.Second)
}

func TestIssueToken_RequiresSubject(t *testing.T) {
	_, err := newTestManager(t).IssueToken("", time.Hour, "", "")
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestIssueToken_DefaultTTL(t *testing.T) {
	tm := newTestManager(t)

	token, err := tm.IssueToken("u1", 0, "", "")
	require.NoError(t, err)

	ac, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), ac.ExpiresAt, 5*time.Second)
}

func TestValidateToken_Expired(t *testing.T) {
	tm := newTestManager(t)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := tm.IssueToken("u1", time.Hour, "", "")
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := newTestManager(t).IssueToken("u1", time.Hour, "", "")
	require.NoError(t, err)

	other, err := NewTokenManager("other-secret", "accessplane")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	issuer, err := NewTokenManager("test-secret", "someone-else")
	require.NoError(t, err)

	token, err := issuer.IssueToken("u1", time.Hour, "", "")
	require.NoError(t, err)

	_, err = newTestManager(t).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "accessplane",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestManager(t).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_MissingExpiry(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "u1", Issuer: "accessplane"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = newTestManager(t).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Garbage(t *testing.T) {
	_, err := newTestManager(t).ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthContext_Authenticated(t *testing.T) {
	var nilCtx *AuthContext
	assert.False(t, nilCtx.Authenticated())
	assert.False(t, (&AuthContext{}).Authenticated())
}
