// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/go-core-stack/mcp-tool-gateway/pkg/apierr"
)

// QueryParamToken is the fallback location of the bearer credential.
const QueryParamToken = "token"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the verified identity extracted from a bearer token.
type Claims struct {
	UserID    string
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
	Raw       map[string]any
}

// TokenValidator verifies bearer tokens signed with one configured algorithm.
type TokenValidator struct {
	parser *jwt.Parser
	key    any
	now    func() time.Time
}

// NewTokenValidator builds a validator for algorithm. For HMAC algorithms the
// secret is the shared key; for RSA, RSA-PSS, ECDSA and EdDSA it must be a PEM
// encoded public key.
func NewTokenValidator(secret, algorithm string) (*TokenValidator, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	key, err := verificationKey(method, secret)
	if err != nil {
		return nil, err
	}

	v := &TokenValidator{
		key: key,
		now: time.Now,
	}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	)
	return v, nil
}

func verificationKey(method jwt.SigningMethod, secret string) (any, error) {
	if secret == "" {
		return nil, errors.New("token secret must be set")
	}
	var (
		key any
		err error
	)
	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		key = []byte(secret)
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		key, err = jwt.ParseRSAPublicKeyFromPEM([]byte(secret))
	case *jwt.SigningMethodECDSA:
		key, err = jwt.ParseECPublicKeyFromPEM([]byte(secret))
	case *jwt.SigningMethodEd25519:
		key, err = jwt.ParseEdPublicKeyFromPEM([]byte(secret))
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", method.Alg())
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s verification key: %w", method.Alg(), err)
	}
	return key, nil
}

// TokenFromRequest locates the credential: an "Authorization: Bearer" header
// first, then the token query parameter.
func TokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token, nil
		}
	}
	if token := strings.TrimSpace(r.URL.Query().Get(QueryParamToken)); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}

// Verify checks signature and expiry of token and returns its claims.
func (v *TokenValidator) Verify(token string) (*Claims, error) {
	mapClaims := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(token, mapClaims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims := &Claims{Raw: map[string]any(mapClaims)}
	claims.Subject, _ = mapClaims.GetSubject()
	if uid, ok := mapClaims["user_id"].(string); ok && uid != "" {
		claims.UserID = uid
	} else {
		claims.UserID = claims.Subject
	}
	if exp, _ := mapClaims.GetExpirationTime(); exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

// Validate extracts and verifies the request credential. Every failure is an
// apierr authentication error with the same client-visible message.
func (v *TokenValidator) Validate(r *http.Request) (*Claims, error) {
	token, err := TokenFromRequest(r)
	if err != nil {
		return nil, apierr.Authentication(err)
	}
	claims, err := v.Verify(token)
	if err != nil {
		return nil, apierr.Authentication(err)
	}
	return claims, nil
}
