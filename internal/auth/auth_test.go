package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer(config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour, Issuer: "neuralchat"})
	require.NoError(t, err)
	return iss
}

func TestNewIssuer_RequiresSecret(t *testing.T) {
	_, err := NewIssuer(config.AuthConfig{})
	assert.Error(t, err)
}

func TestMintVerify(t *testing.T) {
	iss := newTestIssuer(t)

	token, exp, err := iss.Mint("service:frontend")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "service:frontend", claims.Subject)
	assert.Equal(t, "neuralchat", claims.Issuer)
	require.NotNil(t, claims.IssuedAt)

	_, _, err = iss.Mint("  ")
	assert.Error(t, err)
}

func TestVerify_Rejections(t *testing.T) {
	iss := newTestIssuer(t)
	good, _, err := iss.Mint("alice")
	require.NoError(t, err)

	other, err := NewIssuer(config.AuthConfig{JWTSecret: "other-secret", Issuer: "neuralchat"})
	require.NoError(t, err)
	forged, _, err := other.Mint("alice")
	require.NoError(t, err)

	wrongIss, err := NewIssuer(config.AuthConfig{JWTSecret: "test-secret", Issuer: "someone-else"})
	require.NoError(t, err)
	foreign, _, err := wrongIss.Mint("alice")
	require.NoError(t, err)

	expiredIss := newTestIssuer(t)
	expiredIss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiredIss.Mint("alice")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "neuralchat",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		detail string
	}{
		{"garbage", "not.a.jwt", "invalid token"},
		{"tampered", good[:len(good)-2] + "xx", "invalid token"},
		{"wrong secret", forged, "invalid token"},
		{"wrong issuer", foreign, "invalid token"},
		{"expired", expired, "token expired"},
		{"alg none", none, "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iss.Verify(tt.token)
			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
			assert.Equal(t, tt.detail, apperr.Detail(err))
		})
	}
}

func TestMiddleware(t *testing.T) {
	iss := newTestIssuer(t)
	token, _, err := iss.Mint("bob")
	require.NoError(t, err)

	var seen string
	h := iss.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context()).Subject
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"missing authorization token"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "bob", seen)
}
