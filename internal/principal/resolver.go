package principal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Resolution is the outcome of a successful role resolution
type Resolution struct {
	Role      Role
	Principal *Principal
}

// Collection returns where the matched record lives
func (r *Resolution) Collection() Collection {
	return r.Principal.Collection
}

// lookup is one step of a resolution plan
type lookup struct {
	collection Collection
	byEmail    bool
	role       Role
}

// Resolution plans, evaluated in order; the first match wins.
var (
	// untargeted: privileged set first, identifier before email
	planAny = []lookup{
		{CollectionEmployees, false, RoleAdmin},
		{CollectionUsers, false, RoleUser},
		{CollectionEmployees, true, RoleAdmin},
		{CollectionUsers, true, RoleUser},
	}

	// admin app: only the privileged set qualifies
	planAdmin = []lookup{
		{CollectionEmployees, false, RoleAdmin},
		{CollectionEmployees, true, RoleAdmin},
	}

	// public site: customers first, then employees visiting as users
	planUser = []lookup{
		{CollectionUsers, false, RoleUser},
		{CollectionUsers, true, RoleUser},
		{CollectionEmployees, false, RoleUser},
		{CollectionEmployees, true, RoleUser},
	}
)

// Resolver is the single authority for mapping a principal to a role
type Resolver struct {
	repo Repository
	now  func() time.Time
}

// NewResolver creates a Resolver backed by repo
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo, now: time.Now}
}

// Resolve determines the role a principal may act as.
//
// target narrows the record sets consulted: RoleAdmin only accepts employee
// records, RoleUser accepts users and lets employees through as role=user,
// and "" accepts either with employees taking precedence. A user record is
// never upgraded to admin.
//
// Parameters:
//   - ctx: Context for cancellation control
//   - id: Identity provider UID (may be empty when only email is known)
//   - email: Caller email, compared after lowercasing
//   - target: Requested application role, or "" for untargeted resolution
//
// Returns:
//   - Resolution on the first active match
//   - ErrDisabled if the first match has isActive == false
//   - ErrNotFound if nothing matched
//   - Error if the record store fails
func (r *Resolver) Resolve(ctx context.Context, id, email string, target Role) (*Resolution, error) {
	plan, err := planFor(target)
	if err != nil {
		return nil, err
	}

	email = NormalizeEmail(email)

	for _, step := range plan {
		var (
			p   *Principal
			err error
		)
		switch {
		case step.byEmail && email != "":
			p, err = r.repo.FindByEmail(ctx, step.collection, email)
		case !step.byEmail && id != "":
			p, err = r.repo.Get(ctx, step.collection, id)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve principal: %w", err)
		}
		if p == nil {
			continue
		}
		if !p.IsActive {
			return nil, ErrDisabled
		}
		return &Resolution{Role: step.role, Principal: p}, nil
	}

	return nil, ErrNotFound
}

// RecordLogin stamps the login time on the resolved record.
// Failures are logged and otherwise ignored.
func (r *Resolver) RecordLogin(ctx context.Context, res *Resolution) {
	if res == nil || res.Principal == nil {
		return
	}
	if err := r.repo.RecordLogin(ctx, res.Collection(), res.Principal.ID, r.now()); err != nil {
		log.Warn().Err(err).
			Str("collection", string(res.Collection())).
			Str("id", res.Principal.ID).
			Msg("failed to record login")
	}
}

func planFor(target Role) ([]lookup, error) {
	switch target {
	case "":
		return planAny, nil
	case RoleAdmin:
		return planAdmin, nil
	case RoleUser:
		return planUser, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, target)
	}
}
