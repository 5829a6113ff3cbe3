package admin

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGate_AuthenticateAndVerify(t *testing.T) {
	req := require.New(t)
	g, err := NewGate("s3cret", time.Minute)
	req.NoError(err)

	token, err := g.Authenticate("conn-1", "s3cret")
	req.NoError(err)
	req.NotEmpty(token)

	req.NoError(g.Verify(token, "conn-1"))
	// HTTP callers have no transport to bind to.
	req.NoError(g.Verify(token, ""))
}

func TestGate_WrongSecret(t *testing.T) {
	g, err := NewGate("s3cret", time.Minute)
	require.NoError(t, err)

	_, err = g.Authenticate("conn-1", "guess")
	require.ErrorIs(t, err, ErrInvalidSecret)
}

func TestGate_Verify_Rejects(t *testing.T) {
	g, err := NewGate("s3cret", time.Minute)
	require.NoError(t, err)
	other, err := NewGate("different", time.Minute)
	require.NoError(t, err)

	token, err := g.Authenticate("conn-1", "s3cret")
	require.NoError(t, err)
	forged, err := other.Authenticate("conn-1", "different")
	require.NoError(t, err)

	expiredClaims := &Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "conn-1",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, expiredClaims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name      string
		token     string
		transport string
	}{
		{"empty token", "", "conn-1"},
		{"garbage", "not-a-jwt", "conn-1"},
		{"other transport", token, "conn-2"},
		{"signed with another secret", forged, "conn-1"},
		{"expired", expired, "conn-1"},
		{"none algorithm", noneAlg, "conn-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, g.Verify(tt.token, tt.transport), ErrUnauthorized)
		})
	}
}

func TestNewGate_RequiresSecret(t *testing.T) {
	_, err := NewGate("", time.Minute)
	require.Error(t, err)
}
