// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-core-stack/mcp-tool-gateway/pkg/apierr"
)

const testSecret = "test-secret-key-for-jwt-signing"

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifyValidToken(t *testing.T) {
	v, err := NewTokenValidator(testSecret, "HS256")
	require.NoError(t, err)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signHS256(t, testSecret, jwt.MapClaims{
		"user_id": "user-42",
		"sub":     "subject-1",
		"exp":     exp.Unix(),
		"role":    "admin",
	})

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
	assert.Equal(t, "subject-1", claims.Subject)
	assert.True(t, claims.ExpiresAt.Equal(exp))
	assert.Equal(t, "admin", claims.Raw["role"])
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	v, err := NewTokenValidator(testSecret, "HS256")
	require.NoError(t, err)

	claims, err := v.Verify(signHS256(t, testSecret, jwt.MapClaims{"sub": "principal-1"}))
	require.NoError(t, err)
	assert.Equal(t, "principal-1", claims.UserID)
	assert.True(t, claims.ExpiresAt.IsZero())
}

func TestVerifyRejects(t *testing.T) {
	v, err := NewTokenValidator(testSecret, "HS256")
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "x"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt-token"},
		{"malformed", "header.payload.signature"},
		{"wrong secret", signHS256(t, "different-secret", jwt.MapClaims{"sub": "x"})},
		{"expired", signHS256(t, testSecret, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(-time.Minute).Unix()})},
		{"not yet valid", signHS256(t, testSecret, jwt.MapClaims{"sub": "x", "nbf": time.Now().Add(time.Hour).Unix()})},
		{"other algorithm", hs512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer header", target: "/tools", header: "Bearer abc", want: "abc"},
		{name: "header wins over query", target: "/tools?token=q", header: "Bearer h", want: "h"},
		{name: "query fallback", target: "/tools?token=q", want: "q"},
		{name: "non bearer header falls back", target: "/tools?token=q", header: "Basic dXNlcg==", want: "q"},
		{name: "empty bearer falls back", target: "/tools?token=q", header: "Bearer ", want: "q"},
		{name: "nothing", target: "/tools", wantErr: true},
		{name: "non bearer only", target: "/tools", header: "Token abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := TokenFromRequest(req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateHidesFailureReason(t *testing.T) {
	v, err := NewTokenValidator(testSecret, "HS256")
	require.NoError(t, err)

	expired := signHS256(t, testSecret, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(-time.Hour).Unix()})
	misSigned := signHS256(t, "other", jwt.MapClaims{"sub": "x"})

	var messages []string
	for _, token := range []string{"", expired, misSigned} {
		req := httptest.NewRequest(http.MethodGet, "/tools/list", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		_, err := v.Validate(req)
		require.Error(t, err)
		assert.Equal(t, apierr.KindAuthentication, apierr.KindOf(err))

		status, body := apierr.Map(err)
		assert.Equal(t, http.StatusUnauthorized, status)
		messages = append(messages, body.Error.Message)
	}
	assert.Equal(t, messages[0], messages[1])
	assert.Equal(t, messages[1], messages[2])
}

func TestValidateViaQueryParameter(t *testing.T) {
	v, err := NewTokenValidator(testSecret, "HS256")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/tools/list?token="+signHS256(t, testSecret, jwt.MapClaims{"user_id": "u"}), nil)
	claims, err := v.Validate(req)
	require.NoError(t, err)
	assert.Equal(t, "u", claims.UserID)
}

func TestRS256WithPEMPublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	v, err := NewTokenValidator(string(pub), "RS256")
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"user_id": "rsa-user"}).SignedString(key)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "rsa-user", claims.UserID)

	// An HMAC token signed with the PEM text must not pass as RS256.
	forged := signHS256(t, string(pub), jwt.MapClaims{"user_id": "forged"})
	_, err = v.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestES256WithPEMPublicKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	v, err := NewTokenValidator(string(pub), "ES256")
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{"sub": "ec"}).SignedString(key)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ec", claims.UserID)
}

func TestNewTokenValidatorErrors(t *testing.T) {
	_, err := NewTokenValidator(testSecret, "none")
	assert.Error(t, err)

	_, err = NewTokenValidator("", "HS256")
	assert.Error(t, err)

	_, err = NewTokenValidator("not a pem", "RS256")
	assert.Error(t, err)
}
