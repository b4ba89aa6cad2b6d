package user

import (
	"context"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/permission"
)

// RequireOptions gates a RequireUser call — the guard rails spec.md
// §4.4 lists in order: existence, session type, login type, permissions.
type RequireOptions struct {
	EventKeyPrefix         string
	SkipSessionIsUserCheck bool
	RequiredLoginTypes     []domain.LoginType // any-of; empty = no constraint
	RequiredPermissions    []string
}

// RequireResult is the loaded, checked view a route handler acts on.
type RequireResult struct {
	User        domain.User
	Permissions []string
}

// RequireUser loads a user by id and runs every check in
// spec.md §4.4's documented order, translating each failure into its own
// distinct error key.
func (d *Directory) RequireUser(ctx context.Context, userID string, sess domain.Session, opts RequireOptions) (RequireResult, error) {
	u, err := d.users.GetByID(ctx, userID)
	if err == domain.ErrNotFound {
		return RequireResult{}, apperr.Unauthorized(opts.EventKeyPrefix + ".invalidUser")
	}
	if err != nil {
		return RequireResult{}, apperr.Server("server.internal.user.require", err)
	}
	if u.IsDeleted() {
		return RequireResult{}, apperr.Unauthorized(opts.EventKeyPrefix + ".invalidUser")
	}

	if !opts.SkipSessionIsUserCheck && sess.Type != domain.SessionTypeUser {
		return RequireResult{}, apperr.Forbidden(opts.EventKeyPrefix + ".incorrectSessionType")
	}

	if len(opts.RequiredLoginTypes) > 0 {
		matched := false
		for _, t := range opts.RequiredLoginTypes {
			if sess.LoginType == t {
				matched = true
				break
			}
		}
		if !matched {
			return RequireResult{}, apperr.Forbidden(opts.EventKeyPrefix + ".incorrectLoginType")
		}
	}

	perms, err := d.perms.UserSummary(ctx, userID, sess.TenantID)
	if err != nil {
		return RequireResult{}, apperr.Server("server.internal.user.require", err)
	}
	if len(opts.RequiredPermissions) > 0 && !permission.HasAll(perms.Permissions, opts.RequiredPermissions) {
		return RequireResult{}, apperr.Forbidden(opts.EventKeyPrefix + ".missingPermissions")
	}

	return RequireResult{User: u, Permissions: perms.Permissions}, nil
}
