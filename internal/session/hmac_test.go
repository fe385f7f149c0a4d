package session

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otiai10/gatekeeper/internal/principal"
)

func newTestSigner(now *time.Time) *Signer {
	s := NewSigner([]byte("0123456789abcdef0123456789abcdef"), 24*time.Hour)
	s.now = func() time.Time { return *now }
	return s
}

func TestSigner_RoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSigner(&now)

	artifact, err := s.Sign("emp-1", principal.RoleAdmin)
	require.NoError(t, err)

	parts := strings.Split(artifact, ":")
	require.Len(t, parts, 5)
	assert.Equal(t, "emp-1", parts[0])
	assert.Equal(t, "admin", parts[1])
	assert.Equal(t, "1748779200000", parts[2])
	assert.Len(t, parts[3], 32, "16 random bytes, hex encoded")
	assert.Len(t, parts[4], 64, "hex HMAC-SHA256")

	got, err := s.Verify(artifact)
	require.NoError(t, err)
	assert.Equal(t, "emp-1", got.PrincipalID)
	assert.Equal(t, principal.RoleAdmin, got.Role)
	assert.True(t, got.IssuedAt.Equal(now))
	assert.True(t, got.ExpiresAt.Equal(now.Add(24*time.Hour)))
}

func TestSigner_NonceIsFresh(t *testing.T) {
	now := time.Now()
	s := newTestSigner(&now)

	a, err := s.Sign("usr-1", principal.RoleUser)
	require.NoError(t, err)
	b, err := s.Sign("usr-1", principal.RoleUser)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSigner_SingleCharacterTamper(t *testing.T) {
	now := time.Now()
	s := newTestSigner(&now)

	artifact, err := s.Sign("usr-1", principal.RoleUser)
	require.NoError(t, err)

	for i := range len(artifact) {
		replacement := byte('0')
		if artifact[i] == '0' {
			replacement = '1'
		}
		tampered := artifact[:i] + string(replacement) + artifact[i+1:]

		_, err := s.Verify(tampered)
		require.Error(t, err, "position %d", i)
		assert.True(t, err == ErrSignature || err == ErrMalformed, "position %d: %v", i, err)
	}
}

func TestSigner_RoleForgery(t *testing.T) {
	now := time.Now()
	s := newTestSigner(&now)

	artifact, err := s.Sign("usr-1", principal.RoleUser)
	require.NoError(t, err)

	forged := strings.Replace(artifact, ":user:", ":admin:", 1)
	_, err = s.Verify(forged)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestSigner_WrongSecret(t *testing.T) {
	now := time.Now()
	artifact, err := newTestSigner(&now).Sign("usr-1", principal.RoleUser)
	require.NoError(t, err)

	other := NewSigner([]byte("another secret"), 24*time.Hour)
	_, err = other.Verify(artifact)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestSigner_FieldCount(t *testing.T) {
	now := time.Now()
	s := newTestSigner(&now)

	artifact, err := s.Sign("usr-1", principal.RoleUser)
	require.NoError(t, err)

	for _, in := range []string{
		"",
		"usr-1",
		"a:b:c:d",
		artifact + ":extra",
		strings.TrimSuffix(artifact, artifact[strings.LastIndex(artifact, ":"):]),
	} {
		_, err := s.Verify(in)
		assert.ErrorIs(t, err, ErrMalformed, "%q", in)
	}
}

func TestSigner_Expiry(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := issued
	s := newTestSigner(&now)

	artifact, err := s.Sign("usr-1", principal.RoleUser)
	require.NoError(t, err)

	now = issued.Add(24 * time.Hour)
	_, err = s.Verify(artifact)
	assert.NoError(t, err, "valid at exactly the session duration")

	now = issued.Add(24*time.Hour + time.Millisecond)
	_, err = s.Verify(artifact)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestSigner_SignRejectsUnusableInput(t *testing.T) {
	now := time.Now()
	s := newTestSigner(&now)

	_, err := s.Sign("", principal.RoleUser)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = s.Sign("a:b", principal.RoleUser)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = s.Sign("usr-1", principal.Role("root"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSigner_NonceSourceFailure(t *testing.T) {
	now := time.Now()
	s := newTestSigner(&now)
	s.rand = bytes.NewReader([]byte("short"))

	_, err := s.Sign("usr-1", principal.RoleUser)
	assert.Error(t, err)
}

func TestSigner_Manager(t *testing.T) {
	now := time.Now()
	s := newTestSigner(&now)
	ctx := context.Background()

	artifact, err := s.Mint(ctx, MintRequest{PrincipalID: "usr-1", Role: principal.RoleUser})
	require.NoError(t, err)

	got, err := s.Validate(ctx, artifact)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", got.PrincipalID)
	assert.NoError(t, s.Revoke(ctx, got))
	assert.Equal(t, 24*time.Hour, s.Duration())
}
