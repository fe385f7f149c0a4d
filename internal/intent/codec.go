// Package intent records which satellite a visitor came from before
// being sent to the hub to sign in.
package intent

import (
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Shift is the rotation applied to marker words
const Shift = 14

// tokenDelimiter joins the rotated word and the base-36 timestamp
const tokenDelimiter = "_"

// Dictionary is the closed set of marker words a token may carry
var Dictionary = []string{
	"authenticate", "authorize", "validate", "verify",
	"access", "secure", "login", "session", "token",
}

// rotate shifts ASCII letters by n positions, preserving case.
// Every other rune is left untouched.
func rotate(s string, n int) string {
	n = ((n % 26) + 26) % 26
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z':
			return 'A' + (r-'A'+rune(n))%26
		case r >= 'a' && r <= 'z':
			return 'a' + (r-'a'+rune(n))%26
		}
		return r
	}, s)
}

// EncodeWord rotates word forward
func EncodeWord(word string) string {
	return rotate(word, Shift)
}

// DecodeWord reverses EncodeWord and reports whether the result is a
// dictionary word.
func DecodeWord(cipher string) (string, bool) {
	plain := rotate(cipher, -Shift)
	if !slices.Contains(Dictionary, plain) {
		return "", false
	}
	return plain, true
}

// NewToken returns "<rotated word>_<base36 epoch ms>" for a random
// dictionary word. It is tamper evidence, not a secret.
func NewToken(now time.Time) string {
	word := Dictionary[rand.IntN(len(Dictionary))]
	return EncodeWord(word) + tokenDelimiter + strconv.FormatInt(now.UnixMilli(), 36)
}

// ParseToken splits and decodes a token. It never panics; any structural
// problem yields ok == false.
func ParseToken(token string) (word string, issuedAt time.Time, ok bool) {
	parts := strings.Split(token, tokenDelimiter)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", time.Time{}, false
	}

	word, ok = DecodeWord(parts[0])
	if !ok {
		return "", time.Time{}, false
	}

	ms, err := strconv.ParseInt(parts[1], 36, 64)
	if err != nil || ms < 0 {
		return "", time.Time{}, false
	}

	return word, time.UnixMilli(ms), true
}

// ValidToken reports whether token decodes to a dictionary word and was
// issued no more than maxAge before now.
func ValidToken(token string, now time.Time, maxAge time.Duration) bool {
	_, issuedAt, ok := ParseToken(token)
	if !ok {
		return false
	}
	return now.Sub(issuedAt) <= maxAge
}
