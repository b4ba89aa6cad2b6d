package user

import (
	"context"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/domain"
)

// MergeHooks are the caller-provided callbacks spec.md §4.4 lists:
// ShouldCombine guards whether the merge proceeds at all; Before/After
// bracket the re-targeting step.
type MergeHooks struct {
	ShouldCombine func(old, new domain.User) bool
	Before        func(ctx context.Context, old, new domain.User) error
	After         func(ctx context.Context, old, new domain.User) error
}

// Merge folds loser into winner: every foreign key except the identity
// tables (password/anonymous/digid/keycloak/totp/userRole/userTenant —
// see internal/store/postgres.mergeForeignKeyTables, which already
// excludes them) and session (invalidated by the loser's deletion
// cascading, never re-targeted to winner) is re-targeted to winner, then
// loser is deleted.
//
// Must run inside the caller's transaction, same as Create.
func (d *Directory) Merge(ctx context.Context, winner, loser domain.User, hooks MergeHooks) error {
	if hooks.ShouldCombine != nil && !hooks.ShouldCombine(loser, winner) {
		return apperr.Validation("authUser.merge.declinedByCallback")
	}
	if hooks.Before != nil {
		if err := hooks.Before(ctx, loser, winner); err != nil {
			return err
		}
	}
	if err := d.users.Merge(ctx, winner.ID, loser.ID); err != nil {
		return apperr.Server("server.internal.user.merge", err)
	}
	if hooks.After != nil {
		if err := hooks.After(ctx, loser, winner); err != nil {
			return err
		}
	}
	return nil
}
