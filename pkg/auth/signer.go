// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	HeaderAPIKey    = "x-api-key-id"
	HeaderSignature = "x-signature"
	HeaderTimestamp = "x-timestamp"
)

// Signer computes the HMAC headers some tool servers require on every HTTP
// request, including the long-lived event stream and each message POST.
type Signer struct {
	Key    string
	Secret string
	Now    func() time.Time
}

// NewSigner constructs a signer with the provided key/secret.
func NewSigner(key, secret string) *Signer {
	return &Signer{
		Key:    key,
		Secret: secret,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Sign returns the hex HMAC-SHA256 of method, path and timestamp joined by newlines.
func (s *Signer) Sign(method, path, timestamp string) (string, error) {
	if s.Key == "" || s.Secret == "" {
		return "", errors.New("signer key and secret must be set")
	}
	mac := hmac.New(sha256.New, []byte(s.Secret))
	if _, err := mac.Write([]byte(strings.Join([]string{method, path, timestamp}, "\n"))); err != nil {
		return "", fmt.Errorf("compute signature: %w", err)
	}
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// AttachSignature sets the key, signature and timestamp headers on req.
func (s *Signer) AttachSignature(req *http.Request) error {
	timestamp := s.Now().Format(time.RFC3339)
	signature, err := s.Sign(req.Method, req.URL.Path, timestamp)
	if err != nil {
		return err
	}

	req.Header.Set(HeaderAPIKey, s.Key)
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderTimestamp, timestamp)
	return nil
}

// SigningTransport decorates outbound upstream requests with an optional
// static session header and, when Signer is set, HMAC auth headers.
type SigningTransport struct {
	Base          http.RoundTripper
	Signer        *Signer
	SessionHeader string
	SessionValue  string
}

// RoundTrip implements http.RoundTripper. The inbound request is cloned so
// callers never observe the injected headers.
func (t *SigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if t.SessionHeader != "" && t.SessionValue != "" {
		out.Header.Set(t.SessionHeader, t.SessionValue)
	}
	if t.Signer != nil {
		if err := t.Signer.AttachSignature(out); err != nil {
			return nil, fmt.Errorf("sign upstream request: %w", err)
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}
