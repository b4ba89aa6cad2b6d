// Package totp implements the TOTP second factor (spec.md §4.5.5): setup,
// setup verification, runtime verification, and removal.
package totp

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/domain"
)

// setupSkew implements spec.md §4.5.5's "1-step window"; opts uses it
// for both setup verification and runtime verification.
const period = 30
const setupSkew = 1

func opts() totp.ValidateOpts {
	return totp.ValidateOpts{Period: period, Skew: setupSkew, Digits: potp.DigitsSix, Algorithm: potp.AlgorithmSHA512}
}

type Provider struct {
	settings domain.TotpRepository
	issuer   string
}

func New(settings domain.TotpRepository, issuer string) *Provider {
	return &Provider{settings: settings, issuer: issuer}
}

// SetupResult carries the secret and otpauth:// URL the client renders
// as a QR code.
type SetupResult struct {
	Secret string
	URL    string
}

// Setup issues a base32 secret and persists it unverified.
func (p *Provider) Setup(ctx context.Context, userID, accountLabel string) (SetupResult, error) {
	if _, err := p.settings.GetByUserID(ctx, userID); err == nil {
		return SetupResult{}, apperr.Validation("authTotp.setup.alreadySetUp")
	} else if err != nil && err != domain.ErrNotFound {
		return SetupResult{}, apperr.Server("server.internal.authTotp.setup", err)
	}

	secret, err := randomSecret()
	if err != nil {
		return SetupResult{}, apperr.Server("server.internal.authTotp.setup", err)
	}
	if _, err := p.settings.Create(ctx, domain.TotpSettings{UserID: userID, Secret: secret}); err != nil {
		return SetupResult{}, apperr.Server("server.internal.authTotp.setup", err)
	}

	u := fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA512&digits=6&period=%d",
		p.issuer, accountLabel, secret, p.issuer, period)
	return SetupResult{Secret: secret, URL: u}, nil
}

// SetupVerify confirms the setup with a single code, within the 1-step
// window. Rejects if already verified or not set up.
func (p *Provider) SetupVerify(ctx context.Context, userID, code string) error {
	t, err := p.settings.GetByUserID(ctx, userID)
	if err == domain.ErrNotFound {
		return apperr.Validation("authTotp.setupVerify.notSetUp")
	}
	if err != nil {
		return apperr.Server("server.internal.authTotp.setupVerify", err)
	}
	if t.Confirmed {
		return apperr.Validation("authTotp.setupVerify.alreadyVerified")
	}
	ok, _ := totp.ValidateCustom(code, t.Secret, time.Now(), opts())
	if !ok {
		return apperr.Unauthorized("authTotp.setupVerify.invalidCode")
	}
	return p.settings.Confirm(ctx, t.ID, time.Now())
}

// Verify is the runtime second-factor check: same algorithm as
// SetupVerify. On success, the caller promotes session.type from
// checkTwoStep to user.
func (p *Provider) Verify(ctx context.Context, userID, code string) (bool, error) {
	t, err := p.settings.GetByUserID(ctx, userID)
	if err == domain.ErrNotFound {
		return false, apperr.Validation("authTotp.verify.notSetUp")
	}
	if err != nil {
		return false, apperr.Server("server.internal.authTotp.verify", err)
	}
	if !t.Confirmed {
		return false, apperr.Validation("authTotp.verify.notVerified")
	}
	ok, _ := totp.ValidateCustom(code, t.Secret, time.Now(), opts())
	if ok {
		return true, nil
	}
	consumed, err := p.settings.ConsumeRecoveryCode(ctx, userID, code)
	if err != nil {
		return false, apperr.Server("server.internal.authTotp.verify", err)
	}
	return consumed, nil
}

// InfoResult reports whether userID has TOTP set up and confirmed,
// without exposing the secret itself.
type InfoResult struct {
	SetUp     bool
	Confirmed bool
}

// Info backs the "info" read used to drive the client's setup prompt.
func (p *Provider) Info(ctx context.Context, userID string) (InfoResult, error) {
	t, err := p.settings.GetByUserID(ctx, userID)
	if err == domain.ErrNotFound {
		return InfoResult{}, nil
	}
	if err != nil {
		return InfoResult{}, apperr.Server("server.internal.authTotp.info", err)
	}
	return InfoResult{SetUp: true, Confirmed: t.Confirmed}, nil
}

// Remove deletes the caller's own TOTP settings row.
func (p *Provider) Remove(ctx context.Context, userID string) error {
	return wrapDelete(p.settings.Delete(ctx, userID))
}

// RemoveForUser is the same operation performed by an operator holding
// auth:totp:manage; the permission gate lives at the route-handler
// boundary, not here.
func (p *Provider) RemoveForUser(ctx context.Context, targetUserID string) error {
	return wrapDelete(p.settings.Delete(ctx, targetUserID))
}

func wrapDelete(err error) error {
	if err == nil {
		return nil
	}
	if err == domain.ErrNotFound {
		return apperr.NotFound("authTotp.remove.notSetUp")
	}
	return apperr.Server("server.internal.authTotp.remove", err)
}

func randomSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}
