// Package password implements the password-based authentication
// provider (spec.md §4.5.1): login, registration, email verification,
// password reset/update, and the TOTP-backed OTP second factor layered
// on top of it.
package password

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/hex"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/eventbus"
	"github.com/lightbasehq/corehub/internal/session"
	"github.com/lightbasehq/corehub/internal/user"
)

const bcryptCost = 13

// dummyHash lets step 1 of Login run a constant-time-shaped compare
// against something bcrypt-shaped even when no user exists, so the
// "reduce-error-info" flag can't be timed to distinguish unknown emails
// from wrong passwords.
var dummyHash = mustHash("corehub-dummy-password-for-timing-equalization")

func mustHash(plain string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}

// Config is the subset of Auth config this provider reads directly.
type Config struct {
	ReduceErrorInfo          bool
	BlockAfterMaxAttempts    bool
	RemoveCurrentSessionOnly bool
	ForcePasswordRotation    bool
	ForceRotationAfter       time.Duration // spec.md default: 6 months
}

const maxAttempts = 10
const resetTokenTTL = 24 * time.Hour

// otpPeriod/otpSkew implement spec.md §4.5.1's "TOTP with SHA-512, base32
// encoding, window of 11 steps (~5m30s)": 5 steps before + current + 5
// after, each step 30s.
const otpPeriod = 30
const otpSkew = 5
const otpAlgorithm = otp.AlgorithmSHA512

func otpOpts() totp.ValidateOpts {
	return totp.ValidateOpts{Period: otpPeriod, Skew: otpSkew, Digits: otp.DigitsSix, Algorithm: otpAlgorithm}
}

// Provider mediates every password-login operation.
type Provider struct {
	logins domain.PasswordLoginRepository
	users  *user.Directory
	sess   *session.Store
	tail   *authproviders.Tail
	bus    eventbus.Bus
	cfg    Config
}

func New(logins domain.PasswordLoginRepository, users *user.Directory, sess *session.Store, tail *authproviders.Tail, bus eventbus.Bus, cfg Config) *Provider {
	return &Provider{logins: logins, users: users, sess: sess, tail: tail, bus: bus, cfg: cfg}
}

// LoginInput is everything a login call needs; ExistingSessionID/Device
// feed straight into the shared tail.
type LoginInput struct {
	TenantID          string
	Email             string
	Password          string
	ExistingSessionID string
	Device            *authproviders.DeviceInfo
}

// LoginResult reports either a completed session or the checkTwoStep
// addendum spec.md §4.5.1 step 6 describes.
type LoginResult struct {
	Session      domain.Session
	Tokens       session.TokenPair
	NeedsTwoStep bool
}

// Login implements the six documented steps in order.
func (p *Provider) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	pl, err := p.logins.GetByEmail(ctx, in.TenantID, in.Email)
	if err == domain.ErrNotFound {
		if p.cfg.ReduceErrorInfo {
			bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(in.Password))
			return LoginResult{}, apperr.Unauthorized("authPasswordBased.login.invalidEmailPasswordCombination")
		}
		return LoginResult{}, apperr.Unauthorized("authPasswordBased.login.unknownEmail")
	}
	if err != nil {
		return LoginResult{}, apperr.Server("server.internal.authPasswordBased.login", err)
	}

	if p.cfg.BlockAfterMaxAttempts {
		n, err := p.logins.CountRecentFailures(ctx, pl.ID)
		if err != nil {
			return LoginResult{}, apperr.Server("server.internal.authPasswordBased.login", err)
		}
		if n >= maxAttempts {
			_ = p.logins.RecordAttempt(ctx, domain.PasswordLoginAttempt{PasswordLoginID: pl.ID, Succeeded: false})
			return LoginResult{}, apperr.Unauthorized("authPasswordBased.login.maxAttemptsExceeded")
		}
	}

	if bcrypt.CompareHashAndPassword([]byte(pl.PasswordHash), []byte(in.Password)) != nil {
		_ = p.logins.RecordAttempt(ctx, domain.PasswordLoginAttempt{PasswordLoginID: pl.ID, Succeeded: false})
		return LoginResult{}, apperr.Unauthorized("authPasswordBased.login.invalidEmailPasswordCombination")
	}
	if pl.VerifiedAt == nil {
		return LoginResult{}, apperr.Unauthorized("authPasswordBased.login.emailNotVerified")
	}
	_ = p.logins.ClearAttempts(ctx, pl.ID)
	_ = p.logins.RecordAttempt(ctx, domain.PasswordLoginAttempt{PasswordLoginID: pl.ID, Succeeded: true})

	u, err := p.users.Lookup(ctx, pl.UserID)
	if err != nil {
		return LoginResult{}, err
	}
	if u.IsDeleted() {
		return LoginResult{}, apperr.Unauthorized("authPasswordBased.login.unknownEmail")
	}

	now := time.Now()
	if err := p.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		return LoginResult{}, err
	}

	if pl.OtpEnabledAt != nil {
		secret := pl.OtpSecret
		if secret == "" {
			s, err := GenerateOTPSecret()
			if err != nil {
				return LoginResult{}, apperr.Server("server.internal.authPasswordBased.login", err)
			}
			secret = s
		}
		if err := p.logins.SetOtpSecret(ctx, pl.ID, secret, now); err != nil {
			return LoginResult{}, apperr.Server("server.internal.authPasswordBased.login", err)
		}
		code, err := GenerateOTP(secret)
		if err != nil {
			return LoginResult{}, apperr.Server("server.internal.authPasswordBased.login", err)
		}
		_ = p.bus.Enqueue(ctx, eventbus.Event{Name: "auth.passwordBased.requestOtp", Payload: map[string]any{"userId": u.ID, "code": code}})

		sess, pair, err := p.tail.Run(ctx, "authPasswordBased", authproviders.TailInput{
			UserID: u.ID, TenantID: in.TenantID,
			Type: domain.SessionTypeCheckTwoStep, LoginType: domain.LoginTypePassword, TwoStep: "passwordBasedOtp",
			ExistingSessionID: in.ExistingSessionID, Device: in.Device,
		})
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{Session: sess, Tokens: pair, NeedsTwoStep: true}, nil
	}

	if pl.RequiresRotation || (p.cfg.ForcePasswordRotation && time.Since(pl.UpdatedAt) > p.effectiveRotationWindow()) {
		sess, pair, err := p.tail.Run(ctx, "authPasswordBased", authproviders.TailInput{
			UserID: u.ID, TenantID: in.TenantID,
			Type: domain.SessionTypeCheckTwoStep, LoginType: domain.LoginTypePassword, TwoStep: "passwordBasedUpdatePassword",
			ExistingSessionID: in.ExistingSessionID, Device: in.Device,
		})
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{Session: sess, Tokens: pair, NeedsTwoStep: true}, nil
	}

	sess, pair, err := p.tail.Run(ctx, "authPasswordBased", authproviders.TailInput{
		UserID: u.ID, TenantID: in.TenantID,
		Type: domain.SessionTypeUser, LoginType: domain.LoginTypePassword, TwoStep: domain.TwoStepNone,
		ExistingSessionID: in.ExistingSessionID, Device: in.Device,
	})
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Session: sess, Tokens: pair, NeedsTwoStep: false}, nil
}

func (p *Provider) effectiveRotationWindow() time.Duration {
	if p.cfg.ForceRotationAfter > 0 {
		return p.cfg.ForceRotationAfter
	}
	return 6 * 30 * 24 * time.Hour
}

// RegisterInput backs the transactional register step (spec.md §4.5.1,
// called on an already-created user).
type RegisterInput struct {
	UserID         string
	TenantID       string
	Email          string
	Password       string
	RandomPassword bool
}

// RegisterResult carries the reset/verify token the caller delivers out
// of band (email, SMS, ...).
type RegisterResult struct {
	Login             domain.PasswordLogin
	Token             string
	ShouldSetPassword bool
}

// Register must run inside the caller's transaction, same as
// internal/user.Directory.Create.
func (p *Provider) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if err := p.users.CheckPasswordEmailUnique(ctx, in.TenantID, in.Email, in.UserID); err != nil {
		return RegisterResult{}, err
	}

	plain := in.Password
	shouldSetPassword := false
	var verifiedNow bool
	if in.RandomPassword {
		random, err := randomPassword()
		if err != nil {
			return RegisterResult{}, apperr.Server("server.internal.authPasswordBased.register", err)
		}
		plain = random
		shouldSetPassword = true
		verifiedNow = true
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return RegisterResult{}, apperr.Server("server.internal.authPasswordBased.register", err)
	}

	pl, err := p.logins.Create(ctx, domain.PasswordLogin{
		UserID: in.UserID, TenantID: in.TenantID, Email: in.Email, PasswordHash: string(hash),
	})
	if err != nil {
		return RegisterResult{}, apperr.Server("server.internal.authPasswordBased.register", err)
	}
	if verifiedNow {
		if err := p.logins.SetVerifiedAt(ctx, pl.ID, time.Now()); err != nil {
			return RegisterResult{}, apperr.Server("server.internal.authPasswordBased.register", err)
		}
	}

	token, err := p.issueToken(ctx, pl.ID, shouldSetPassword, resetTokenTTL)
	if err != nil {
		return RegisterResult{}, err
	}

	_ = p.bus.Enqueue(ctx, eventbus.Event{Name: "auth.passwordBased.userRegistered", Payload: map[string]any{"userId": in.UserID, "email": in.Email}})
	return RegisterResult{Login: pl, Token: token, ShouldSetPassword: shouldSetPassword}, nil
}

// issueToken creates the reset-or-verify token row. shouldSetPassword is
// stashed as a prefix on the stored token value itself, so VerifyEmail
// and ResetPassword reject a token presented to the wrong endpoint
// without a dedicated column — spec.md only describes the two call
// sites' distinct checks, not the storage shape.
func (p *Provider) issueToken(ctx context.Context, passwordLoginID string, shouldSetPassword bool, ttl time.Duration) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", apperr.Server("server.internal.authPasswordBased.issueToken", err)
	}
	token := hex.EncodeToString(raw)
	_, err := p.logins.CreateReset(ctx, domain.PasswordLoginReset{
		PasswordLoginID: passwordLoginID,
		Token:           encodeTokenKind(token, shouldSetPassword),
		ExpiresAt:       time.Now().Add(ttl),
	})
	if err != nil {
		return "", apperr.Server("server.internal.authPasswordBased.issueToken", err)
	}
	return token, nil
}

func encodeTokenKind(token string, shouldSetPassword bool) string {
	if shouldSetPassword {
		return "r_" + token
	}
	return "v_" + token
}

// VerifyEmail consumes a non-expired token stored with shouldSetPassword
// = false.
func (p *Provider) VerifyEmail(ctx context.Context, token string) error {
	r, err := p.logins.GetResetByToken(ctx, encodeTokenKind(token, false))
	if err == domain.ErrNotFound {
		return apperr.Validation("authPasswordBased.verifyEmail.invalidToken")
	}
	if err != nil {
		return apperr.Server("server.internal.authPasswordBased.verifyEmail", err)
	}
	if r.ConsumedAt != nil || time.Now().After(r.ExpiresAt) {
		return apperr.Validation("authPasswordBased.verifyEmail.invalidToken")
	}
	pl, err := p.logins.GetByID(ctx, r.PasswordLoginID)
	if err != nil {
		return apperr.Server("server.internal.authPasswordBased.verifyEmail", err)
	}
	if pl.VerifiedAt == nil {
		if err := p.logins.SetVerifiedAt(ctx, pl.ID, time.Now()); err != nil {
			return apperr.Server("server.internal.authPasswordBased.verifyEmail", err)
		}
	}
	if err := p.logins.ConsumeReset(ctx, r.ID, time.Now()); err != nil {
		return apperr.Server("server.internal.authPasswordBased.verifyEmail", err)
	}
	_ = p.bus.Enqueue(ctx, eventbus.Event{Name: "auth.passwordBased.loginVerified", Payload: map[string]any{"passwordLoginId": pl.ID}})
	return nil
}

// ResetPassword consumes a non-expired token stored with
// shouldSetPassword = true, writes the new hash, and deletes the token.
func (p *Provider) ResetPassword(ctx context.Context, token, newPassword string) error {
	r, err := p.logins.GetResetByToken(ctx, encodeTokenKind(token, true))
	if err == domain.ErrNotFound {
		return apperr.Validation("authPasswordBased.resetPassword.invalidToken")
	}
	if err != nil {
		return apperr.Server("server.internal.authPasswordBased.resetPassword", err)
	}
	if r.ConsumedAt != nil || time.Now().After(r.ExpiresAt) {
		return apperr.Validation("authPasswordBased.resetPassword.invalidToken")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return apperr.Server("server.internal.authPasswordBased.resetPassword", err)
	}
	if err := p.logins.UpdateHash(ctx, r.PasswordLoginID, string(hash), false); err != nil {
		return apperr.Server("server.internal.authPasswordBased.resetPassword", err)
	}
	if err := p.logins.ConsumeReset(ctx, r.ID, time.Now()); err != nil {
		return apperr.Server("server.internal.authPasswordBased.resetPassword", err)
	}
	_ = p.bus.Enqueue(ctx, eventbus.Event{Name: "auth.passwordBased.passwordReset", Payload: map[string]any{"passwordLoginId": r.PasswordLoginID}})
	return nil
}

// ForgotPassword always succeeds observably when ReduceErrorInfo is on
// and the email is unknown; otherwise it issues a token and enqueues the
// documented event.
func (p *Provider) ForgotPassword(ctx context.Context, tenantID, email string) error {
	pl, err := p.logins.GetByEmail(ctx, tenantID, email)
	if err == domain.ErrNotFound {
		if p.cfg.ReduceErrorInfo {
			return nil
		}
		return apperr.Validation("authPasswordBased.forgotPassword.unknownEmail")
	}
	if err != nil {
		return apperr.Server("server.internal.authPasswordBased.forgotPassword", err)
	}
	if _, err := p.issueToken(ctx, pl.ID, true, resetTokenTTL); err != nil {
		return err
	}
	_ = p.bus.Enqueue(ctx, eventbus.Event{Name: "auth.passwordBased.forgotPassword", Payload: map[string]any{"passwordLoginId": pl.ID}})
	return nil
}

// UpdateEmail rewrites email, nulls verifiedAt, issues a fresh verify
// token, and revokes every session for the user.
func (p *Provider) UpdateEmail(ctx context.Context, userID, tenantID, newEmail string) (string, error) {
	pl, err := p.logins.GetByUserID(ctx, tenantID, userID)
	if err == domain.ErrNotFound {
		return "", apperr.Validation("authPasswordBased.updateEmail.noPasswordLogin")
	}
	if err != nil {
		return "", apperr.Server("server.internal.authPasswordBased.updateEmail", err)
	}
	if err := p.users.CheckPasswordEmailUnique(ctx, tenantID, newEmail, userID); err != nil {
		return "", err
	}
	if err := p.logins.Delete(ctx, pl.ID); err != nil {
		return "", apperr.Server("server.internal.authPasswordBased.updateEmail", err)
	}
	pl, err = p.logins.Create(ctx, domain.PasswordLogin{UserID: userID, TenantID: tenantID, Email: newEmail, PasswordHash: pl.PasswordHash})
	if err != nil {
		return "", apperr.Server("server.internal.authPasswordBased.updateEmail", err)
	}
	token, err := p.issueToken(ctx, pl.ID, false, resetTokenTTL)
	if err != nil {
		return "", err
	}
	if err := p.sess.InvalidateAllForUser(ctx, userID); err != nil {
		return "", apperr.Server("server.internal.authPasswordBased.updateEmail", err)
	}
	_ = p.bus.Enqueue(ctx, eventbus.Event{Name: "auth.passwordBased.emailUpdated", Payload: map[string]any{"userId": userID, "email": newEmail}})
	return token, nil
}

// ListEmails returns every password login userID holds across tenants,
// backing the "list-emails" operation (spec.md §6).
func (p *Provider) ListEmails(ctx context.Context, userID string) ([]domain.PasswordLogin, error) {
	logins, err := p.logins.ListByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Server("server.internal.authPasswordBased.listEmails", err)
	}
	return logins, nil
}

// UpdatePassword writes a new hash and clears sessions per the
// remove-current-session policy.
func (p *Provider) UpdatePassword(ctx context.Context, userID, tenantID, currentSessionID, newPassword string) error {
	pl, err := p.logins.GetByUserID(ctx, tenantID, userID)
	if err == domain.ErrNotFound {
		return apperr.Validation("authPasswordBased.updatePassword.noPasswordLogin")
	}
	if err != nil {
		return apperr.Server("server.internal.authPasswordBased.updatePassword", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return apperr.Server("server.internal.authPasswordBased.updatePassword", err)
	}
	if err := p.logins.UpdateHash(ctx, pl.ID, string(hash), false); err != nil {
		return apperr.Server("server.internal.authPasswordBased.updatePassword", err)
	}

	if p.cfg.RemoveCurrentSessionOnly && currentSessionID != "" {
		if err := p.sess.Invalidate(ctx, currentSessionID); err != nil {
			return apperr.Server("server.internal.authPasswordBased.updatePassword", err)
		}
	} else if err := p.sess.InvalidateAllForUser(ctx, userID); err != nil {
		return apperr.Server("server.internal.authPasswordBased.updatePassword", err)
	}

	_ = p.bus.Enqueue(ctx, eventbus.Event{Name: "auth.passwordBased.passwordUpdated", Payload: map[string]any{"userId": userID}})
	return nil
}

// GenerateOTPSecret issues a fresh base32 secret for the requestOtp flow
// (spec.md §4.5.1 step 6 — "generate (or reuse) an OTP secret").
func GenerateOTPSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// GenerateOTP computes the current TOTP token for delivery out of band.
func GenerateOTP(secret string) (string, error) {
	return totp.GenerateCodeCustom(secret, time.Now(), otpOpts())
}

// VerifyOTP checks code against secret with the 11-step window spec.md
// §4.5.1 documents.
func VerifyOTP(secret, code string) bool {
	ok, _ := totp.ValidateCustom(code, secret, time.Now(), otpOpts())
	return ok
}

// VerifyLoginOTP checks the runtime second factor for a checkTwoStep
// session. On success the caller promotes the session by running the
// shared tail again and invalidating the checkTwoStep session, issuing a
// new token pair rather than mutating the existing one in place — the
// client's original access token stops working and must be replaced
// with the one returned from this call.
func (p *Provider) VerifyLoginOTP(ctx context.Context, userID, tenantID, code string) (bool, error) {
	pl, err := p.logins.GetByUserID(ctx, tenantID, userID)
	if err != nil {
		return false, apperr.Server("server.internal.authPasswordBased.verifyLoginOtp", err)
	}
	if pl.OtpSecret == "" {
		return false, apperr.Validation("authPasswordBased.verifyLoginOtp.notEnabled")
	}
	return VerifyOTP(pl.OtpSecret, code), nil
}

func randomPassword() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
