package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/otiai10/gatekeeper/internal/principal"
)

const (
	fieldDelimiter = ":"
	fieldCount     = 5
	nonceBytes     = 16
)

// Signer is the HMAC variant. Artifacts have the fixed shape
// principalId:role:timestampMs:nonce:hex(HMAC-SHA256(secret, first four fields)).
type Signer struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
	rand     io.Reader
}

// Ensure Signer implements Manager interface
var _ Manager = (*Signer)(nil)

// NewSigner creates a Signer
func NewSigner(secret []byte, duration time.Duration) *Signer {
	return &Signer{
		secret:   secret,
		duration: duration,
		now:      time.Now,
		rand:     rand.Reader,
	}
}

// Sign produces an artifact for principalID acting as role
func (s *Signer) Sign(principalID string, role principal.Role) (string, error) {
	if principalID == "" || strings.Contains(principalID, fieldDelimiter) {
		return "", fmt.Errorf("%w: unusable principal id %q", ErrMalformed, principalID)
	}
	if _, err := principal.ParseRole(string(role)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	nonce := make([]byte, nonceBytes)
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	payload := strings.Join([]string{
		principalID,
		string(role),
		strconv.FormatInt(s.now().UnixMilli(), 10),
		hex.EncodeToString(nonce),
	}, fieldDelimiter)

	return payload + fieldDelimiter + s.signature(payload), nil
}

// Verify checks shape, signature and age, in that order. Nothing in the
// artifact is trusted before the signature matches.
func (s *Signer) Verify(artifact string) (*Session, error) {
	parts := strings.Split(artifact, fieldDelimiter)
	if len(parts) != fieldCount {
		return nil, ErrMalformed
	}

	expected := s.signature(strings.Join(parts[:fieldCount-1], fieldDelimiter))
	if !hmac.Equal([]byte(parts[fieldCount-1]), []byte(expected)) {
		return nil, ErrSignature
	}

	ms, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, ErrMalformed
	}
	role, err := principal.ParseRole(parts[1])
	if err != nil {
		return nil, ErrMalformed
	}

	issuedAt := time.UnixMilli(ms)
	if s.now().Sub(issuedAt) > s.duration {
		return nil, ErrExpired
	}

	return &Session{
		PrincipalID: parts[0],
		Role:        role,
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt.Add(s.duration),
	}, nil
}

// Mint implements Manager
func (s *Signer) Mint(ctx context.Context, req MintRequest) (string, error) {
	return s.Sign(req.PrincipalID, req.Role)
}

// Validate implements Manager
func (s *Signer) Validate(ctx context.Context, artifact string) (*Session, error) {
	return s.Verify(artifact)
}

// Revoke is a no-op: HMAC artifacts live until they expire or the cookie is cleared
func (s *Signer) Revoke(ctx context.Context, sess *Session) error {
	return nil
}

// Duration implements Manager
func (s *Signer) Duration() time.Duration {
	return s.duration
}

func (s *Signer) signature(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
