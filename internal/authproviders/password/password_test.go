package password

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/eventbus"
	"github.com/lightbasehq/corehub/internal/permission"
	"github.com/lightbasehq/corehub/internal/session"
	"github.com/lightbasehq/corehub/internal/user"
)

type fakePasswordLogins struct {
	byID    map[string]domain.PasswordLogin
	resets  map[string]domain.PasswordLoginReset
	seq     int
	resetID int
}

func newFakePasswordLogins() *fakePasswordLogins {
	return &fakePasswordLogins{byID: make(map[string]domain.PasswordLogin), resets: make(map[string]domain.PasswordLoginReset)}
}

func (r *fakePasswordLogins) GetByEmail(ctx context.Context, tenantID, email string) (domain.PasswordLogin, error) {
	for _, pl := range r.byID {
		if pl.TenantID == tenantID && pl.Email == email {
			return pl, nil
		}
	}
	return domain.PasswordLogin{}, domain.ErrNotFound
}
func (r *fakePasswordLogins) GetByID(ctx context.Context, id string) (domain.PasswordLogin, error) {
	pl, ok := r.byID[id]
	if !ok {
		return domain.PasswordLogin{}, domain.ErrNotFound
	}
	return pl, nil
}
func (r *fakePasswordLogins) GetByUserID(ctx context.Context, tenantID, userID string) (domain.PasswordLogin, error) {
	for _, pl := range r.byID {
		if pl.TenantID == tenantID && pl.UserID == userID {
			return pl, nil
		}
	}
	return domain.PasswordLogin{}, domain.ErrNotFound
}
func (r *fakePasswordLogins) ListByUserID(ctx context.Context, userID string) ([]domain.PasswordLogin, error) {
	var out []domain.PasswordLogin
	for _, pl := range r.byID {
		if pl.UserID == userID {
			out = append(out, pl)
		}
	}
	return out, nil
}
func (r *fakePasswordLogins) Create(ctx context.Context, pl domain.PasswordLogin) (domain.PasswordLogin, error) {
	r.seq++
	pl.ID = "pl-" + string(rune('0'+r.seq))
	pl.UpdatedAt = time.Now()
	r.byID[pl.ID] = pl
	return pl, nil
}
func (r *fakePasswordLogins) UpdateHash(ctx context.Context, id, hash string, requiresRotation bool) error {
	pl := r.byID[id]
	pl.PasswordHash = hash
	pl.RequiresRotation = requiresRotation
	pl.UpdatedAt = time.Now()
	r.byID[id] = pl
	return nil
}
func (r *fakePasswordLogins) SetVerifiedAt(ctx context.Context, id string, at time.Time) error {
	pl := r.byID[id]
	pl.VerifiedAt = &at
	r.byID[id] = pl
	return nil
}
func (r *fakePasswordLogins) SetOtpSecret(ctx context.Context, id, secret string, enabledAt time.Time) error {
	pl := r.byID[id]
	pl.OtpSecret = secret
	pl.OtpEnabledAt = &enabledAt
	r.byID[id] = pl
	return nil
}
func (r *fakePasswordLogins) Delete(ctx context.Context, id string) error {
	delete(r.byID, id)
	return nil
}
func (r *fakePasswordLogins) CreateReset(ctx context.Context, rr domain.PasswordLoginReset) (domain.PasswordLoginReset, error) {
	r.resetID++
	rr.ID = "reset-" + string(rune('0'+r.resetID))
	r.resets[rr.Token] = rr
	return rr, nil
}
func (r *fakePasswordLogins) GetResetByToken(ctx context.Context, token string) (domain.PasswordLoginReset, error) {
	rr, ok := r.resets[token]
	if !ok {
		return domain.PasswordLoginReset{}, domain.ErrNotFound
	}
	return rr, nil
}
func (r *fakePasswordLogins) ConsumeReset(ctx context.Context, id string, at time.Time) error {
	for token, rr := range r.resets {
		if rr.ID == id {
			rr.ConsumedAt = &at
			r.resets[token] = rr
		}
	}
	return nil
}
func (r *fakePasswordLogins) RecordAttempt(ctx context.Context, a domain.PasswordLoginAttempt) error { return nil }
func (r *fakePasswordLogins) CountRecentFailures(ctx context.Context, passwordLoginID string) (int, error) {
	return 0, nil
}
func (r *fakePasswordLogins) ClearAttempts(ctx context.Context, passwordLoginID string) error { return nil }

type fakeUsers struct{ users map[string]domain.User }

func (r *fakeUsers) Create(ctx context.Context, u domain.User) (domain.User, error) { return u, nil }
func (r *fakeUsers) GetByID(ctx context.Context, id string) (domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}
func (r *fakeUsers) Update(ctx context.Context, u domain.User) error { r.users[u.ID] = u; return nil }
func (r *fakeUsers) SoftDelete(ctx context.Context, id string, at time.Time) error { return nil }
func (r *fakeUsers) Reactivate(ctx context.Context, id string) error              { return nil }
func (r *fakeUsers) AddTenant(ctx context.Context, userID, tenantID string) error { return nil }
func (r *fakeUsers) RemoveTenant(ctx context.Context, userID, tenantID string) error {
	return nil
}
func (r *fakeUsers) ListTenants(ctx context.Context, userID string) ([]domain.UserTenant, error) {
	return nil, nil
}
func (r *fakeUsers) IsMember(ctx context.Context, userID, tenantID string) (bool, error) {
	return true, nil
}
func (r *fakeUsers) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]domain.User, error) {
	return nil, nil
}
func (r *fakeUsers) Merge(ctx context.Context, winnerID, loserID string) error { return nil }

type fakePerms struct{}

func (fakePerms) ListPermissions(ctx context.Context) ([]domain.Permission, error) { return nil, nil }
func (fakePerms) SyncPermissions(ctx context.Context, identifiers []string) error  { return nil }
func (fakePerms) ListRoles(ctx context.Context, tenantID *string) ([]domain.Role, error) {
	return nil, nil
}
func (fakePerms) GetRole(ctx context.Context, id string) (domain.Role, error) {
	return domain.Role{}, domain.ErrNotFound
}
func (fakePerms) GetRoleByIdentifier(ctx context.Context, tenantID *string, identifier string) (domain.Role, error) {
	return domain.Role{}, domain.ErrNotFound
}
func (fakePerms) CreateRole(ctx context.Context, r domain.Role) (domain.Role, error) { return r, nil }
func (fakePerms) DeleteRole(ctx context.Context, id string) error                    { return nil }
func (fakePerms) SetRolePermissions(ctx context.Context, roleID string, identifiers []string) error {
	return nil
}
func (fakePerms) ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	return nil, nil
}
func (fakePerms) AssignUserRole(ctx context.Context, userID, roleID string) error { return nil }
func (fakePerms) RemoveUserRole(ctx context.Context, userID, roleID string) error { return nil }
func (fakePerms) SyncUserRoles(ctx context.Context, userID string, roleIDs []string) error {
	return nil
}
func (fakePerms) UserPermissions(ctx context.Context, userID, tenantID string) ([]string, error) {
	return nil, nil
}

type fakeSessions struct {
	byID map[string]domain.Session
	seq  int
}

func newFakeSessions() *fakeSessions { return &fakeSessions{byID: make(map[string]domain.Session)} }

func (r *fakeSessions) Create(ctx context.Context, s domain.Session) (domain.Session, error) {
	r.seq++
	s.ID = "sess-" + string(rune('0'+r.seq))
	r.byID[s.ID] = s
	return s, nil
}
func (r *fakeSessions) GetByID(ctx context.Context, id string) (domain.Session, error) {
	s, ok := r.byID[id]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return s, nil
}
func (r *fakeSessions) Update(ctx context.Context, s domain.Session) error {
	r.byID[s.ID] = s
	return nil
}
func (r *fakeSessions) Revoke(ctx context.Context, id string, at time.Time) error {
	s := r.byID[id]
	s.RevokedAt = &at
	r.byID[id] = s
	return nil
}
func (r *fakeSessions) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	for id, s := range r.byID {
		if s.UserID == userID {
			s.RevokedAt = &at
			r.byID[id] = s
		}
	}
	return nil
}
func (r *fakeSessions) ListActiveForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	return nil, nil
}
func (r *fakeSessions) AppendToken(ctx context.Context, t domain.SessionToken) (domain.SessionToken, error) {
	return t, nil
}
func (r *fakeSessions) GetToken(ctx context.Context, sessionID, tokenID string) (domain.SessionToken, error) {
	return domain.SessionToken{}, domain.ErrNotFound
}
func (r *fakeSessions) MarkTokenUsed(ctx context.Context, id string, at time.Time) error { return nil }

type fakeDevices struct{}

func (fakeDevices) GetByIdentity(ctx context.Context, userID, identity string) (domain.Device, error) {
	return domain.Device{}, domain.ErrNotFound
}
func (fakeDevices) GetByID(ctx context.Context, id string) (domain.Device, error) {
	return domain.Device{}, domain.ErrNotFound
}
func (fakeDevices) Upsert(ctx context.Context, d domain.Device) (domain.Device, error) {
	d.ID = "device-1"
	return d, nil
}
func (fakeDevices) CountMobileSessions(ctx context.Context, userID string) (int, error) { return 0, nil }
func (fakeDevices) SetNotificationToken(ctx context.Context, id, token string) error    { return nil }

type testEnv struct {
	provider *Provider
	logins   *fakePasswordLogins
	dir      *user.Directory
	sess     *session.Store
	tail     *authproviders.Tail
}

func newTestEnv(t *testing.T, users ...domain.User) *testEnv {
	t.Helper()
	logins := newFakePasswordLogins()
	userMap := make(map[string]domain.User)
	for _, u := range users {
		userMap[u.ID] = u
	}
	dir := user.New(&fakeUsers{users: userMap}, logins, nil, permission.New(fakePerms{}), eventbus.NewMemoryBus())
	issuer := session.NewIssuer("top-secret", 15*time.Minute, 720*time.Hour)
	store := session.NewStore(issuer, newFakeSessions(), "checksum-secret")
	tail := authproviders.New(store, fakeDevices{}, authproviders.Config{})
	p := New(logins, dir, store, tail, eventbus.NewMemoryBus(), Config{})
	return &testEnv{provider: p, logins: logins, dir: dir, sess: store, tail: tail}
}

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	require.NoError(t, err)
	return string(h)
}

func TestLogin_RejectsUnverifiedEmail(t *testing.T) {
	env := newTestEnv(t, domain.User{ID: "u1"})
	_, err := env.logins.Create(context.Background(), domain.PasswordLogin{
		UserID: "u1", TenantID: "acme", Email: "a@acme.test", PasswordHash: mustHashPassword(t, "correct-password"),
	})
	require.NoError(t, err)

	_, err = env.provider.Login(context.Background(), LoginInput{TenantID: "acme", Email: "a@acme.test", Password: "correct-password"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, "authPasswordBased.login.emailNotVerified"))
}

// TestLogin_PasswordPlusOtp_EndToEnd drives the documented two-step
// flow: a verified, OTP-enabled login must come back as checkTwoStep
// first, then the OTP check promotes it to a full "user" session that
// still records passwordBased as its login type.
func TestLogin_PasswordPlusOtp_EndToEnd(t *testing.T) {
	env := newTestEnv(t, domain.User{ID: "u1"})
	pl, err := env.logins.Create(context.Background(), domain.PasswordLogin{
		UserID: "u1", TenantID: "acme", Email: "a@acme.test", PasswordHash: mustHashPassword(t, "correct-password"),
	})
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, env.logins.SetVerifiedAt(context.Background(), pl.ID, now))

	secret, err := GenerateOTPSecret()
	require.NoError(t, err)
	require.NoError(t, env.logins.SetOtpSecret(context.Background(), pl.ID, secret, now))

	res, err := env.provider.Login(context.Background(), LoginInput{TenantID: "acme", Email: "a@acme.test", Password: "correct-password"})
	require.NoError(t, err)
	assert.True(t, res.NeedsTwoStep)
	assert.Equal(t, domain.SessionTypeCheckTwoStep, res.Session.Type)
	assert.Equal(t, domain.LoginTypePassword, res.Session.LoginType)

	code, err := GenerateOTP(secret)
	require.NoError(t, err)
	ok, err := env.provider.VerifyLoginOTP(context.Background(), "u1", "acme", code)
	require.NoError(t, err)
	require.True(t, ok)

	promoted, pair, err := env.tail.Run(context.Background(), "authPasswordBased", authproviders.TailInput{
		UserID: "u1", TenantID: "acme",
		Type: domain.SessionTypeUser, LoginType: domain.LoginTypePassword, TwoStep: domain.TwoStepNone,
		ExistingSessionID: res.Session.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionTypeUser, promoted.Type)
	assert.Equal(t, domain.LoginTypePassword, promoted.LoginType)
	assert.NotEmpty(t, pair.AccessToken)

	loaded, err := env.sess.Load(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionTypeUser, loaded.Type, `GET /auth/me must report "user" after password+OTP`)
}

func TestLogin_NoOtp_IssuesFullUserSessionDirectly(t *testing.T) {
	env := newTestEnv(t, domain.User{ID: "u1"})
	pl, err := env.logins.Create(context.Background(), domain.PasswordLogin{
		UserID: "u1", TenantID: "acme", Email: "a@acme.test", PasswordHash: mustHashPassword(t, "correct-password"),
	})
	require.NoError(t, err)
	require.NoError(t, env.logins.SetVerifiedAt(context.Background(), pl.ID, time.Now()))

	res, err := env.provider.Login(context.Background(), LoginInput{TenantID: "acme", Email: "a@acme.test", Password: "correct-password"})
	require.NoError(t, err)
	assert.False(t, res.NeedsTwoStep)
	assert.Equal(t, domain.SessionTypeUser, res.Session.Type)
	assert.Equal(t, domain.LoginTypePassword, res.Session.LoginType)
}

func TestRegister_RejectsDuplicateEmailAcrossSameTenant(t *testing.T) {
	env := newTestEnv(t, domain.User{ID: "u1"}, domain.User{ID: "u2"})
	_, err := env.provider.Register(context.Background(), RegisterInput{UserID: "u1", TenantID: "acme", Email: "dup@acme.test", Password: "p1"})
	require.NoError(t, err)

	_, err = env.provider.Register(context.Background(), RegisterInput{UserID: "u2", TenantID: "acme", Email: "dup@acme.test", Password: "p2"})
	require.Error(t, err)
}

// TestRegister_AllowsDuplicateEmailAcrossDifferentTenants covers the
// cross-tenant case: the same email may belong to different users in
// different tenants, since uniqueness is scoped per tenantID.
func TestRegister_AllowsDuplicateEmailAcrossDifferentTenants(t *testing.T) {
	env := newTestEnv(t, domain.User{ID: "u1"}, domain.User{ID: "u2"})
	_, err := env.provider.Register(context.Background(), RegisterInput{UserID: "u1", TenantID: "acme", Email: "dup@shared.test", Password: "p1"})
	require.NoError(t, err)

	_, err = env.provider.Register(context.Background(), RegisterInput{UserID: "u2", TenantID: "globex", Email: "dup@shared.test", Password: "p2"})
	require.NoError(t, err)
}
