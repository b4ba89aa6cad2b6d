// Package user implements the user directory: creation, lookup with
// provider/permission gating, soft-delete, and merge (spec.md §4.4).
package user

import (
	"context"
	"time"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/eventbus"
	"github.com/lightbasehq/corehub/internal/permission"
)

// Directory mediates every user-lifecycle operation.
type Directory struct {
	users    domain.UserRepository
	passLog  domain.PasswordLoginRepository
	keycLog  domain.KeycloakLoginRepository
	perms    *permission.Engine
	bus      eventbus.Bus
}

func New(users domain.UserRepository, passLog domain.PasswordLoginRepository, keycLog domain.KeycloakLoginRepository, perms *permission.Engine, bus eventbus.Bus) *Directory {
	return &Directory{users: users, passLog: passLog, keycLog: keycLog, perms: perms, bus: bus}
}

// CreateInput captures the register-time choices spec.md §4.4 lists.
type CreateInput struct {
	DisplayName *string
	// Tenants are the tenants the new user is registered in
	// immediately; if SyncAcrossAllTenants is set, every tenant in
	// AllTenantIDs is added regardless of this list.
	Tenants              []string
	SyncAcrossAllTenants bool
	AllTenantIDs         []string
	InitialRoleIDs       []string
}

// Create must run inside the caller's transaction — every repository
// call here uses the Queryer the caller wired into users/passLog/keycLog
// at construction time (see internal/store/postgres.DB.WithTx). The
// provider-specific register steps (password/anonymous/digid/keycloak/
// totp attachment) are the caller's responsibility and run after this
// returns but before the same transaction commits, so that CheckUnique
// below sees them.
func (d *Directory) Create(ctx context.Context, in CreateInput) (domain.User, error) {
	u, err := d.users.Create(ctx, domain.User{DisplayName: in.DisplayName})
	if err != nil {
		return domain.User{}, apperr.Server("server.internal.user.create", err)
	}

	tenantIDs := in.Tenants
	if in.SyncAcrossAllTenants {
		tenantIDs = in.AllTenantIDs
	}
	for _, t := range tenantIDs {
		if err := d.users.AddTenant(ctx, u.ID, t); err != nil {
			return domain.User{}, apperr.Server("server.internal.user.addTenant", err)
		}
	}

	if len(in.InitialRoleIDs) > 0 {
		if err := d.perms.SyncUserRoles(ctx, u.ID, in.InitialRoleIDs); err != nil {
			return domain.User{}, apperr.Server("server.internal.user.syncRoles", err)
		}
	}

	return u, nil
}

// CheckPasswordEmailUnique and CheckKeycloakEmailUnique (below) are the
// uniqueness hooks spec.md §4.4 step 5 calls after a provider's register
// step has attached its login row — at that point the caller knows the
// concrete email/subject to check. Create itself does not call them: it
// only creates the bare user and tenant memberships; provider packages
// call these directly once they have written PasswordLogin/KeycloakLogin
// inside the same transaction.

// CheckPasswordEmailUnique fails with the documented key if another
// non-deleted user already holds email in tenantID.
func (d *Directory) CheckPasswordEmailUnique(ctx context.Context, tenantID, email, exceptUserID string) error {
	existing, err := d.passLog.GetByEmail(ctx, tenantID, email)
	if err == domain.ErrNotFound {
		return nil
	}
	if err != nil {
		return apperr.Server("server.internal.user.checkUnique", err)
	}
	if existing.UserID == exceptUserID {
		return nil
	}
	u, err := d.users.GetByID(ctx, existing.UserID)
	if err != nil {
		return apperr.Server("server.internal.user.checkUnique", err)
	}
	if u.IsDeleted() {
		return nil
	}
	return apperr.Validation("authPasswordBased.checkUnique.duplicateEmail")
}

func (d *Directory) CheckKeycloakEmailUnique(ctx context.Context, tenantID, subject, exceptUserID string) error {
	existing, err := d.keycLog.GetBySubject(ctx, tenantID, subject)
	if err == domain.ErrNotFound {
		return nil
	}
	if err != nil {
		return apperr.Server("server.internal.user.checkUnique", err)
	}
	if existing.UserID == exceptUserID {
		return nil
	}
	u, err := d.users.GetByID(ctx, existing.UserID)
	if err != nil {
		return apperr.Server("server.internal.user.checkUnique", err)
	}
	if u.IsDeleted() {
		return nil
	}
	return apperr.Validation("authKeycloakBased.checkUnique.duplicateEmail")
}

// IsMember reports whether userID already holds a tenant membership row
// for tenantID.
func (d *Directory) IsMember(ctx context.Context, userID, tenantID string) (bool, error) {
	ok, err := d.users.IsMember(ctx, userID, tenantID)
	if err != nil {
		return false, apperr.Server("server.internal.user.isMember", err)
	}
	return ok, nil
}

// AddTenant adds a tenant membership and re-runs uniqueness, the path
// spec.md §8 scenario 3 exercises ("Adding U2 to acme via
// authUserAddTenant → 400 at uniqueness check").
func (d *Directory) AddTenant(ctx context.Context, userID, tenantID, email string) error {
	if email != "" {
		if err := d.CheckPasswordEmailUnique(ctx, tenantID, email, userID); err != nil {
			return err
		}
	}
	if err := d.users.AddTenant(ctx, userID, tenantID); err != nil {
		return apperr.Server("server.internal.user.addTenant", err)
	}
	return nil
}

// SoftDelete enqueues auth.user.softDeleted exactly once, per the
// teacher's usual "the repository performs the state change; the caller
// enqueues after commit" split: this method does both because it does
// not run under a caller-managed transaction (soft-delete is a single
// UPDATE, not a multi-table write — spec.md §5 only requires a
// transaction for create/register/merge/delete of provider attachments).
func (d *Directory) SoftDelete(ctx context.Context, userID string) error {
	if err := d.users.SoftDelete(ctx, userID, time.Now()); err != nil {
		return apperr.Server("server.internal.user.softDelete", err)
	}
	return d.bus.Enqueue(ctx, eventbus.Event{
		Name:    "auth.user.softDeleted",
		Payload: map[string]any{"userId": userID},
	})
}

// Lookup returns a user by id without any of RequireUser's gating —
// providers use it once they already hold a verified credential.
func (d *Directory) Lookup(ctx context.Context, userID string) (domain.User, error) {
	u, err := d.users.GetByID(ctx, userID)
	if err == domain.ErrNotFound {
		return domain.User{}, apperr.NotFound("authUser.lookup.notFound")
	}
	if err != nil {
		return domain.User{}, apperr.Server("server.internal.user.lookup", err)
	}
	return u, nil
}

// UpdateLastLogin is the lastLogin bump every provider's login path
// performs on success.
func (d *Directory) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	u, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return apperr.Server("server.internal.user.updateLastLogin", err)
	}
	u.LastLoginAt = &at
	if err := d.users.Update(ctx, u); err != nil {
		return apperr.Server("server.internal.user.updateLastLogin", err)
	}
	return nil
}

func (d *Directory) Reactivate(ctx context.Context, userID string) error {
	if err := d.users.Reactivate(ctx, userID); err != nil {
		return apperr.Server("server.internal.user.reactivate", err)
	}
	return nil
}

// ListByTenant pages through tenantID's membership, the "list-users"
// operator read.
func (d *Directory) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]domain.User, error) {
	users, err := d.users.ListByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, apperr.Server("server.internal.user.listByTenant", err)
	}
	return users, nil
}

// UpdateDisplayName is the operator-driven "user/:id/update" operation.
func (d *Directory) UpdateDisplayName(ctx context.Context, userID string, displayName *string) error {
	u, err := d.users.GetByID(ctx, userID)
	if err == domain.ErrNotFound {
		return apperr.NotFound("authUser.update.notFound")
	}
	if err != nil {
		return apperr.Server("server.internal.user.updateDisplayName", err)
	}
	u.DisplayName = displayName
	if err := d.users.Update(ctx, u); err != nil {
		return apperr.Server("server.internal.user.updateDisplayName", err)
	}
	return nil
}

// SetActive toggles a user's soft-delete state: active=false soft-deletes,
// active=true reactivates, the "set-active" operator operation.
func (d *Directory) SetActive(ctx context.Context, userID string, active bool) error {
	if active {
		return d.Reactivate(ctx, userID)
	}
	return d.SoftDelete(ctx, userID)
}
