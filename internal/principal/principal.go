// Package principal holds identity records and resolves which role a
// signed-in principal may act as.
package principal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the authoritative role of a principal for one request
type Role string

// Supported roles
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole validates s against the closed role enum
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleUser:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Collection names the record set a principal lives in
type Collection string

// Record sets
const (
	// CollectionEmployees holds privileged (admin) records
	CollectionEmployees Collection = "employees"
	// CollectionUsers holds customer records
	CollectionUsers Collection = "users"
)

// Error definitions
var (
	// ErrNotFound is returned when no record matches the identifier or email
	ErrNotFound = errors.New("principal not found")

	// ErrDisabled is returned when the matched record has isActive == false
	ErrDisabled = errors.New("principal disabled")

	// ErrInvalidRole is returned for a role outside {admin, user}
	ErrInvalidRole = errors.New("invalid role")
)

// Principal is an identity record owned by the record store
type Principal struct {
	ID          string // document ID
	Collection  Collection
	UID         string // identity provider UID, may differ from ID
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
	PhotoURL    string
	IsActive    bool
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// Name returns the best display name available
func (p *Principal) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	full := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if full != "" {
		return full
	}
	return p.Email
}

// NormalizeEmail lowercases and trims an email for equality lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
