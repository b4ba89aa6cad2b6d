package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/observability/metrics"
)

// Store wires the Issuer to a domain.SessionRepository, implementing
// create/verify/rotate/invalidate (spec.md §4.3). Every error surfaced
// here is pre-normalized with apperr.NormalizeSessionError at the
// boundary — non-500s become 401, 500s pass through.
type Store struct {
	issuer *Issuer
	repo   domain.SessionRepository
	secret []byte
}

func NewStore(issuer *Issuer, repo domain.SessionRepository, checksumSecret string) *Store {
	return &Store{issuer: issuer, repo: repo, secret: []byte(checksumSecret)}
}

// checksum hashes the session's opaque data payload (spec.md §4.3: "the
// checksum is a content hash over data; at load, a mismatch denotes
// tampering"). Any field in the payload changes the digest, so
// UpdateData must recompute it.
func checksum(secret string, sess domain.Session) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s|%s|%s|%s", sess.UserID, sess.LoginType, sess.Type, sess.TwoStep, impersonatorKey(sess.ImpersonatorUserID))
	return hex.EncodeToString(mac.Sum(nil))
}

func impersonatorKey(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

// TokenPair is what every successful auth-provider tail returns.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// Create issues a brand-new session and its first refresh-token link.
func (s *Store) Create(ctx context.Context, userID, tenantID string, typ domain.SessionType, loginType domain.LoginType, twoStep domain.TwoStepType, deviceID *string, impersonatorUserID *string, refreshTTLOverride *time.Duration) (domain.Session, TokenPair, error) {
	ttl := s.issuer.refreshTTL
	if refreshTTLOverride != nil {
		ttl = *refreshTTLOverride
	}

	sess, err := s.repo.Create(ctx, domain.Session{
		UserID:             userID,
		TenantID:           tenantID,
		Type:               typ,
		LoginType:          loginType,
		TwoStep:            twoStep,
		DeviceID:           deviceID,
		ImpersonatorUserID: impersonatorUserID,
		ExpiresAt:          time.Now().Add(ttl),
	})
	if err != nil {
		return domain.Session{}, TokenPair{}, apperr.Server("server.internal.session.create", err)
	}
	sess.Checksum = checksum(string(s.secret), sess)

	tokenID := uuid.NewString()
	if _, err := s.repo.AppendToken(ctx, domain.SessionToken{SessionID: sess.ID, TokenID: tokenID}); err != nil {
		return domain.Session{}, TokenPair{}, apperr.Server("server.internal.session.create", err)
	}
	sess.CurrentTokenID = tokenID
	if err := s.repo.Update(ctx, sess); err != nil {
		return domain.Session{}, TokenPair{}, apperr.Server("server.internal.session.create", err)
	}

	pair, err := s.issueForSession(sess, tokenID, refreshTTLOverride)
	return sess, pair, err
}

func (s *Store) issueForSession(sess domain.Session, tokenID string, ttlOverride *time.Duration) (TokenPair, error) {
	access, accessExp, err := s.issuer.IssueAccess(sess.ID)
	if err != nil {
		return TokenPair{}, apperr.Server("server.internal.session.sign", err)
	}
	refresh, refreshExp, err := s.issuer.IssueRefresh(sess.ID, tokenID, ttlOverride)
	if err != nil {
		return TokenPair{}, apperr.Server("server.internal.session.sign", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, AccessExp: accessExp, RefreshExp: refreshExp}, nil
}

// Load verifies an access token and returns the backing session,
// checking revocation and the content checksum.
func (s *Store) Load(ctx context.Context, accessToken string) (domain.Session, error) {
	claims, err := s.issuer.VerifyAccess(accessToken)
	if err != nil {
		return domain.Session{}, apperr.Unauthorized("session.load.invalidToken")
	}
	sess, err := s.repo.GetByID(ctx, claims.SessionID)
	if err != nil {
		return domain.Session{}, apperr.Unauthorized("session.load.notFound")
	}
	if sess.IsRevoked() {
		return domain.Session{}, apperr.Unauthorized("session.load.revoked")
	}
	if checksum(string(s.secret), sess) != sess.Checksum {
		return domain.Session{}, apperr.Unauthorized("session.load.checksumMismatch")
	}
	return sess, nil
}

// Refresh implements the rotation protocol of spec.md §4.3, including
// the replay rule: re-presenting an already-used refresh token revokes
// the whole chain.
func (s *Store) Refresh(ctx context.Context, refreshToken string, ttlOverride *time.Duration) (domain.Session, TokenPair, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		metrics.RefreshRotations.WithLabelValues("denied").Inc()
		return domain.Session{}, TokenPair{}, apperr.Unauthorized("session.refresh.invalidToken")
	}

	row, err := s.repo.GetToken(ctx, claims.SessionID, claims.TokenID)
	if err != nil {
		metrics.RefreshRotations.WithLabelValues("denied").Inc()
		return domain.Session{}, TokenPair{}, apperr.Unauthorized("session.refresh.unknownToken")
	}

	sess, err := s.repo.GetByID(ctx, claims.SessionID)
	if err != nil || sess.IsRevoked() {
		metrics.RefreshRotations.WithLabelValues("denied").Inc()
		return domain.Session{}, TokenPair{}, apperr.Unauthorized("session.refresh.sessionRevoked")
	}

	if row.UsedAt != nil {
		// Replay: this token was already rotated away once. Revoke the
		// whole chain — someone is presenting a stolen refresh token.
		_ = s.repo.Revoke(ctx, sess.ID, time.Now())
		metrics.SessionsRevoked.Inc()
		metrics.RefreshRotations.WithLabelValues("replay_detected").Inc()
		return domain.Session{}, TokenPair{}, apperr.Unauthorized("session.refresh.replayDetected")
	}

	now := time.Now()
	if err := s.repo.MarkTokenUsed(ctx, row.ID, now); err != nil {
		return domain.Session{}, TokenPair{}, apperr.Server("server.internal.session.refresh", err)
	}

	newTokenID := uuid.NewString()
	if _, err := s.repo.AppendToken(ctx, domain.SessionToken{SessionID: sess.ID, TokenID: newTokenID}); err != nil {
		return domain.Session{}, TokenPair{}, apperr.Server("server.internal.session.refresh", err)
	}
	sess.CurrentTokenID = newTokenID
	if ttlOverride != nil {
		sess.ExpiresAt = now.Add(*ttlOverride)
	}
	if err := s.repo.Update(ctx, sess); err != nil {
		return domain.Session{}, TokenPair{}, apperr.Server("server.internal.session.refresh", err)
	}

	pair, err := s.issueForSession(sess, newTokenID, ttlOverride)
	if err != nil {
		return domain.Session{}, TokenPair{}, err
	}
	metrics.RefreshRotations.WithLabelValues("ok").Inc()
	return sess, pair, nil
}

// UpdateData rewrites the session's opaque payload — typically the
// checkTwoStep-to-user promotion — and recomputes its checksum over the
// new payload so tampering with any field invalidates it at the next
// Load.
func (s *Store) UpdateData(ctx context.Context, sessionID string, mutate func(domain.Session) domain.Session) (domain.Session, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return domain.Session{}, apperr.NormalizeSessionError(err)
	}
	sess = mutate(sess)
	sess.Checksum = checksum(string(s.secret), sess)
	if err := s.repo.Update(ctx, sess); err != nil {
		return domain.Session{}, apperr.Server("server.internal.session.update", err)
	}
	return sess, nil
}

func (s *Store) Invalidate(ctx context.Context, sessionID string) error {
	metrics.SessionsRevoked.Inc()
	return s.repo.Revoke(ctx, sessionID, time.Now())
}

func (s *Store) InvalidateAllForUser(ctx context.Context, userID string) error {
	return s.repo.RevokeAllForUser(ctx, userID, time.Now())
}

func (s *Store) ListActiveForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.repo.ListActiveForUser(ctx, userID)
}
