// Package impersonation lets a management operator assume a target
// user's identity for a bounded session (spec.md §4.4, §4.9), and exit
// back out of it.
package impersonation

import (
	"context"
	"time"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/session"
)

const manageCapability = "auth:user:manage"

// defaultTTL bounds an impersonated session well below a normal
// refresh-token lifetime, so an operator's elevated access expires
// quickly even if they forget to stop it explicitly.
const defaultTTL = 30 * time.Minute

type Service struct {
	tail *authproviders.Tail
	sess *session.Store
}

func New(tail *authproviders.Tail, sess *session.Store) *Service {
	return &Service{tail: tail, sess: sess}
}

// Start issues a new session for targetUserID, tagged with the
// operator's own id so audit and StopSession can recover who is
// impersonating whom.
func (s *Service) Start(ctx context.Context, operatorPermissions []string, operatorUserID, targetUserID, tenantID string) (domain.Session, session.TokenPair, error) {
	if !hasManageCapability(operatorPermissions) {
		return domain.Session{}, session.TokenPair{}, apperr.Forbidden("authUser.impersonate.missingManageCapability")
	}
	ttl := defaultTTL
	sess, pair, err := s.tail.Run(ctx, "authUser.impersonate", authproviders.TailInput{
		UserID: targetUserID, TenantID: tenantID,
		Type: domain.SessionTypeUser, TwoStep: domain.TwoStepNone,
		ImpersonatorUserID: &operatorUserID,
		RefreshTTLOverride: &ttl,
	})
	return sess, pair, err
}

// StopSession exits impersonation by revoking the impersonated session;
// the operator re-authenticates under their own identity afterward, the
// same way any other session end works.
func (s *Service) StopSession(ctx context.Context, sess domain.Session) error {
	if sess.ImpersonatorUserID == nil {
		return apperr.Validation("authUser.impersonateStopSession.notImpersonating")
	}
	return apperr.NormalizeSessionError(s.sess.Invalidate(ctx, sess.ID))
}

func hasManageCapability(granted []string) bool {
	for _, p := range granted {
		if p == manageCapability {
			return true
		}
	}
	return false
}
