package totp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pquernatotp "github.com/pquerna/otp/totp"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/domain"
)

type fakeSettings struct {
	byUserID map[string]domain.TotpSettings
	seq      int
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{byUserID: make(map[string]domain.TotpSettings)}
}

func (r *fakeSettings) GetByUserID(ctx context.Context, userID string) (domain.TotpSettings, error) {
	t, ok := r.byUserID[userID]
	if !ok {
		return domain.TotpSettings{}, domain.ErrNotFound
	}
	return t, nil
}
func (r *fakeSettings) Create(ctx context.Context, t domain.TotpSettings) (domain.TotpSettings, error) {
	r.seq++
	t.ID = "totp-" + string(rune('0'+r.seq))
	r.byUserID[t.UserID] = t
	return t, nil
}
func (r *fakeSettings) Confirm(ctx context.Context, id string, at time.Time) error {
	for userID, t := range r.byUserID {
		if t.ID == id {
			t.Confirmed = true
			t.ConfirmedAt = &at
			r.byUserID[userID] = t
		}
	}
	return nil
}
func (r *fakeSettings) ReplaceRecoveryCodes(ctx context.Context, id string, codes []string) error {
	for userID, t := range r.byUserID {
		if t.ID == id {
			t.RecoveryCodes = codes
			r.byUserID[userID] = t
		}
	}
	return nil
}
func (r *fakeSettings) ConsumeRecoveryCode(ctx context.Context, userID, code string) (bool, error) {
	t, ok := r.byUserID[userID]
	if !ok {
		return false, nil
	}
	for i, c := range t.RecoveryCodes {
		if c == code {
			t.RecoveryCodes = append(t.RecoveryCodes[:i], t.RecoveryCodes[i+1:]...)
			r.byUserID[userID] = t
			return true, nil
		}
	}
	return false, nil
}
func (r *fakeSettings) Delete(ctx context.Context, userID string) error {
	delete(r.byUserID, userID)
	return nil
}

func generateCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := pquernatotp.GenerateCodeCustom(secret, time.Now(), opts())
	require.NoError(t, err)
	return code
}

func TestSetupThenSetupVerify(t *testing.T) {
	p := New(newFakeSettings(), "corehub")

	res, err := p.Setup(context.Background(), "u1", "u1@acme.test")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Secret)

	code := generateCode(t, res.Secret)
	require.NoError(t, p.SetupVerify(context.Background(), "u1", code))

	info, err := p.Info(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, info.SetUp)
	assert.True(t, info.Confirmed)
}

func TestSetup_RejectsWhenAlreadySetUp(t *testing.T) {
	p := New(newFakeSettings(), "corehub")
	_, err := p.Setup(context.Background(), "u1", "u1@acme.test")
	require.NoError(t, err)

	_, err = p.Setup(context.Background(), "u1", "u1@acme.test")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, "authTotp.setup.alreadySetUp"))
}

func TestVerify_AcceptsValidCodeOnConfirmedSetup(t *testing.T) {
	settings := newFakeSettings()
	p := New(settings, "corehub")
	res, err := p.Setup(context.Background(), "u1", "u1@acme.test")
	require.NoError(t, err)
	require.NoError(t, p.SetupVerify(context.Background(), "u1", generateCode(t, res.Secret)))

	ok, err := p.Verify(context.Background(), "u1", generateCode(t, res.Secret))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_FallsBackToRecoveryCode(t *testing.T) {
	settings := newFakeSettings()
	p := New(settings, "corehub")
	res, err := p.Setup(context.Background(), "u1", "u1@acme.test")
	require.NoError(t, err)
	require.NoError(t, p.SetupVerify(context.Background(), "u1", generateCode(t, res.Secret)))
	t1, err := settings.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, settings.ReplaceRecoveryCodes(context.Background(), t1.ID, []string{"recovery-code-1"}))

	ok, err := p.Verify(context.Background(), "u1", "recovery-code-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Verify(context.Background(), "u1", "recovery-code-1")
	require.NoError(t, err)
	assert.False(t, ok, "a consumed recovery code must not work twice")
}

func TestVerify_RejectsBeforeSetupConfirmed(t *testing.T) {
	settings := newFakeSettings()
	p := New(settings, "corehub")
	_, err := p.Setup(context.Background(), "u1", "u1@acme.test")
	require.NoError(t, err)

	_, err = p.Verify(context.Background(), "u1", "000000")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, "authTotp.verify.notVerified"))
}
