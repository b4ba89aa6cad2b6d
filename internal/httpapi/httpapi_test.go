package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/authproviders/anonymous"
	"github.com/lightbasehq/corehub/internal/authproviders/password"
	"github.com/lightbasehq/corehub/internal/authproviders/totp"
	"github.com/lightbasehq/corehub/internal/config"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/eventbus"
	"github.com/lightbasehq/corehub/internal/permission"
	"github.com/lightbasehq/corehub/internal/ratelimit"
	"github.com/lightbasehq/corehub/internal/session"
	"github.com/lightbasehq/corehub/internal/tenant"
	"github.com/lightbasehq/corehub/internal/user"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers struct{ users map[string]domain.User }

func (r *fakeUsers) Create(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = "u-" + string(rune('0'+len(r.users)+1))
	}
	r.users[u.ID] = u
	return u, nil
}
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

type fakePasswordLogins struct {
	byID map[string]domain.PasswordLogin
	seq  int
}

func newFakePasswordLogins() *fakePasswordLogins {
	return &fakePasswordLogins{byID: make(map[string]domain.PasswordLogin)}
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
	return nil, nil
}
func (r *fakePasswordLogins) Create(ctx context.Context, pl domain.PasswordLogin) (domain.PasswordLogin, error) {
	r.seq++
	pl.ID = "pl-" + string(rune('0'+r.seq))
	r.byID[pl.ID] = pl
	return pl, nil
}
func (r *fakePasswordLogins) UpdateHash(ctx context.Context, id, hash string, requiresRotation bool) error {
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
func (r *fakePasswordLogins) Delete(ctx context.Context, id string) error { return nil }
func (r *fakePasswordLogins) CreateReset(ctx context.Context, rr domain.PasswordLoginReset) (domain.PasswordLoginReset, error) {
	return rr, nil
}
func (r *fakePasswordLogins) GetResetByToken(ctx context.Context, token string) (domain.PasswordLoginReset, error) {
	return domain.PasswordLoginReset{}, domain.ErrNotFound
}
func (r *fakePasswordLogins) ConsumeReset(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (r *fakePasswordLogins) RecordAttempt(ctx context.Context, a domain.PasswordLoginAttempt) error {
	return nil
}
func (r *fakePasswordLogins) CountRecentFailures(ctx context.Context, passwordLoginID string) (int, error) {
	return 0, nil
}
func (r *fakePasswordLogins) ClearAttempts(ctx context.Context, passwordLoginID string) error {
	return nil
}

type fakeAnonymousLogins struct{ byKey map[string]domain.AnonymousLogin }

func (r *fakeAnonymousLogins) GetByDeviceKey(ctx context.Context, tenantID, deviceKey string) (domain.AnonymousLogin, error) {
	al, ok := r.byKey[tenantID+"/"+deviceKey]
	if !ok {
		return domain.AnonymousLogin{}, domain.ErrNotFound
	}
	return al, nil
}
func (r *fakeAnonymousLogins) Create(ctx context.Context, a domain.AnonymousLogin) (domain.AnonymousLogin, error) {
	r.byKey[a.TenantID+"/"+a.DeviceKey] = a
	return a, nil
}
func (r *fakeAnonymousLogins) Delete(ctx context.Context, id string) error { return nil }

type fakePermRepo struct{}

func (fakePermRepo) ListPermissions(ctx context.Context) ([]domain.Permission, error) { return nil, nil }
func (fakePermRepo) SyncPermissions(ctx context.Context, identifiers []string) error   { return nil }
func (fakePermRepo) ListRoles(ctx context.Context, tenantID *string) ([]domain.Role, error) {
	return nil, nil
}
func (fakePermRepo) GetRole(ctx context.Context, id string) (domain.Role, error) {
	return domain.Role{}, domain.ErrNotFound
}
func (fakePermRepo) GetRoleByIdentifier(ctx context.Context, tenantID *string, identifier string) (domain.Role, error) {
	return domain.Role{}, domain.ErrNotFound
}
func (fakePermRepo) CreateRole(ctx context.Context, r domain.Role) (domain.Role, error) {
	return r, nil
}
func (fakePermRepo) DeleteRole(ctx context.Context, id string) error { return nil }
func (fakePermRepo) SetRolePermissions(ctx context.Context, roleID string, identifiers []string) error {
	return nil
}
func (fakePermRepo) ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	return nil, nil
}
func (fakePermRepo) AssignUserRole(ctx context.Context, userID, roleID string) error { return nil }
func (fakePermRepo) RemoveUserRole(ctx context.Context, userID, roleID string) error { return nil }
func (fakePermRepo) SyncUserRoles(ctx context.Context, userID string, roleIDs []string) error {
	return nil
}
func (fakePermRepo) UserPermissions(ctx context.Context, userID, tenantID string) ([]string, error) {
	return nil, nil
}

type fakeSessionRepo struct {
	byID   map[string]domain.Session
	tokens map[string]domain.SessionToken
	seq    int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{byID: make(map[string]domain.Session), tokens: make(map[string]domain.SessionToken)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, s domain.Session) (domain.Session, error) {
	r.seq++
	s.ID = "sess-" + string(rune('0'+r.seq))
	r.byID[s.ID] = s
	return s, nil
}
func (r *fakeSessionRepo) GetByID(ctx context.Context, id string) (domain.Session, error) {
	s, ok := r.byID[id]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return s, nil
}
func (r *fakeSessionRepo) Update(ctx context.Context, s domain.Session) error {
	existing := r.byID[s.ID]
	existing.Type = s.Type
	existing.CurrentTokenID = s.CurrentTokenID
	existing.Checksum = s.Checksum
	existing.DeviceID = s.DeviceID
	existing.ImpersonatorUserID = s.ImpersonatorUserID
	existing.ExpiresAt = s.ExpiresAt
	r.byID[s.ID] = existing
	return nil
}
func (r *fakeSessionRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	s := r.byID[id]
	s.RevokedAt = &at
	r.byID[id] = s
	return nil
}
func (r *fakeSessionRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	return nil
}
func (r *fakeSessionRepo) ListActiveForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	var out []domain.Session
	for _, s := range r.byID {
		if s.UserID == userID && s.RevokedAt == nil {
			out = append(out, s)
		}
	}
	return out, nil
}
func (r *fakeSessionRepo) AppendToken(ctx context.Context, t domain.SessionToken) (domain.SessionToken, error) {
	r.seq++
	t.ID = "tok-" + string(rune('0'+r.seq))
	r.tokens[t.SessionID+"/"+t.TokenID] = t
	return t, nil
}
func (r *fakeSessionRepo) GetToken(ctx context.Context, sessionID, tokenID string) (domain.SessionToken, error) {
	tok, ok := r.tokens[sessionID+"/"+tokenID]
	if !ok {
		return domain.SessionToken{}, domain.ErrNotFound
	}
	return tok, nil
}
func (r *fakeSessionRepo) MarkTokenUsed(ctx context.Context, id string, at time.Time) error {
	for key, tok := range r.tokens {
		if tok.ID == id {
			tok.UsedAt = &at
			r.tokens[key] = tok
		}
	}
	return nil
}

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

type fakeTotpSettings struct{ byUserID map[string]domain.TotpSettings }

func (r *fakeTotpSettings) GetByUserID(ctx context.Context, userID string) (domain.TotpSettings, error) {
	t, ok := r.byUserID[userID]
	if !ok {
		return domain.TotpSettings{}, domain.ErrNotFound
	}
	return t, nil
}
func (r *fakeTotpSettings) Create(ctx context.Context, t domain.TotpSettings) (domain.TotpSettings, error) {
	t.ID = "totp-" + t.UserID
	r.byUserID[t.UserID] = t
	return t, nil
}
func (r *fakeTotpSettings) Confirm(ctx context.Context, id string, at time.Time) error { return nil }
func (r *fakeTotpSettings) ReplaceRecoveryCodes(ctx context.Context, id string, codes []string) error {
	return nil
}
func (r *fakeTotpSettings) ConsumeRecoveryCode(ctx context.Context, userID, code string) (bool, error) {
	return false, nil
}
func (r *fakeTotpSettings) Delete(ctx context.Context, userID string) error { return nil }

func twoTenantDoc() *config.TenantsDocument {
	return &config.TenantsDocument{
		Tenants: map[string]config.TenantSpec{
			"acme": {
				URLConfig: map[string]config.URLConfigEntry{
					"https://acme.example": {Environment: config.EnvDevelopment, APIUrl: "api.acme.example"},
				},
			},
			"globex": {
				URLConfig: map[string]config.URLConfigEntry{
					"https://globex.example": {Environment: config.EnvDevelopment, APIUrl: "api.globex.example"},
				},
			},
		},
	}
}

type testApp struct {
	app      *App
	router   http.Handler
	logins   *fakePasswordLogins
	anon     *fakeAnonymousLogins
	users    *fakeUsers
	sessions *session.Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	resolver, err := tenant.Build(config.EnvDevelopment, twoTenantDoc())
	require.NoError(t, err)

	pwLogins := newFakePasswordLogins()
	anonLogins := &fakeAnonymousLogins{byKey: make(map[string]domain.AnonymousLogin)}
	users := &fakeUsers{users: make(map[string]domain.User)}
	dir := user.New(users, pwLogins, nil, permission.New(fakePermRepo{}), eventbus.NewMemoryBus())

	issuer := session.NewIssuer("top-secret", 15*time.Minute, 720*time.Hour)
	store := session.NewStore(issuer, newFakeSessionRepo(), "checksum-secret")
	tail := authproviders.New(store, fakeDevices{}, authproviders.Config{})

	pwProvider := password.New(pwLogins, dir, store, tail, eventbus.NewMemoryBus(), password.Config{})
	anonProvider := anonymous.New(anonLogins, dir, tail, eventbus.NewMemoryBus())
	totpProvider := totp.New(&fakeTotpSettings{byUserID: make(map[string]domain.TotpSettings)}, "corehub")

	var cfg config.Config
	cfg.App.Env = config.EnvDevelopment

	app := &App{
		Cfg:         &cfg,
		Tenants:     resolver,
		Sessions:    store,
		Tail:        tail,
		Users:       dir,
		Perms:       permission.New(fakePermRepo{}),
		Password:    pwProvider,
		Anonymous:   anonProvider,
		Totp:        totpProvider,
		RateLimiter: ratelimit.New("", false),
		Bus:         eventbus.NewMemoryBus(),
	}

	return &testApp{app: app, router: NewRouter(app), logins: pwLogins, anon: anonLogins, users: users, sessions: store}
}

func (ta *testApp) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Host = "api.acme.example"
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	ta.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

// TestPasswordLoginWithOtp_PromotesSessionToUser drives the full §8
// password+2FA scenario over HTTP: login reports checkTwoStep, then
// verify-otp promotes it, and /auth/me reports session.type == "user".
func TestPasswordLoginWithOtp_PromotesSessionToUser(t *testing.T) {
	ta := newTestApp(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-password"), 13)
	require.NoError(t, err)
	now := time.Now()
	secret, err := password.GenerateOTPSecret()
	require.NoError(t, err)
	pl, err := ta.logins.Create(context.Background(), domain.PasswordLogin{
		UserID: "u1", TenantID: "acme", Email: "a@acme.test", PasswordHash: string(hash),
	})
	require.NoError(t, err)
	require.NoError(t, ta.logins.SetVerifiedAt(context.Background(), pl.ID, now))
	require.NoError(t, ta.logins.SetOtpSecret(context.Background(), pl.ID, secret, now))
	ta.users.users["u1"] = domain.User{ID: "u1"}

	loginRec := ta.do(t, http.MethodPost, "/auth/password-based/login", map[string]string{
		"email": "a@acme.test", "password": "correct-password",
	}, "")
	require.Equal(t, http.StatusOK, loginRec.Code)
	var loginResp passwordLoginResponse
	decodeBody(t, loginRec, &loginResp)
	assert.True(t, loginResp.NeedsTwoStep)
	assert.Equal(t, "checkTwoStep", loginResp.Session.Type)

	code, err := password.GenerateOTP(secret)
	require.NoError(t, err)
	verifyRec := ta.do(t, http.MethodPost, "/auth/password-based/verify-otp", map[string]string{"code": code}, loginResp.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, verifyRec.Code)
	var verifyResp passwordLoginResponse
	decodeBody(t, verifyRec, &verifyResp)
	assert.Equal(t, "user", verifyResp.Session.Type)
	assert.Equal(t, "passwordBased", verifyResp.Session.LoginType)

	meRec := ta.do(t, http.MethodGet, "/auth/me", nil, verifyResp.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, meRec.Code)
	var me meResponse
	decodeBody(t, meRec, &me)
	assert.Equal(t, "user", me.Session.Type, `GET /auth/me must report "user" after password+OTP`)
}

func TestRefreshTokens_ReplayIsRejected(t *testing.T) {
	ta := newTestApp(t)
	sess, pair, err := ta.sessions.Create(context.Background(), "u1", "acme", domain.SessionTypeUser, domain.LoginTypePassword, domain.TwoStepNone, nil, nil, nil)
	require.NoError(t, err)
	_ = sess

	firstRec := ta.do(t, http.MethodPost, "/auth/refresh-tokens", map[string]string{"refreshToken": pair.RefreshToken}, "")
	require.Equal(t, http.StatusOK, firstRec.Code)

	replayRec := ta.do(t, http.MethodPost, "/auth/refresh-tokens", map[string]string{"refreshToken": pair.RefreshToken}, "")
	assert.NotEqual(t, http.StatusOK, replayRec.Code, "presenting an already-rotated refresh token must be rejected")
}

// TestAnonymousLogin_RejectsTokenNotAllowedToLogin exercises Comment 1's
// documented wire contract end-to-end: a non-deleted user whose
// anonymous token is marked isAllowedToLogin=false gets 400, not 401.
func TestAnonymousLogin_RejectsTokenNotAllowedToLogin(t *testing.T) {
	ta := newTestApp(t)
	ta.users.users["u1"] = domain.User{ID: "u1"}
	ta.anon.byKey["acme/tok-1"] = domain.AnonymousLogin{UserID: "u1", TenantID: "acme", DeviceKey: "tok-1", IsAllowedToLogin: false}

	rec := ta.do(t, http.MethodPost, "/auth/anonymous-based/login", map[string]string{"loginToken": "tok-1"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, "authAnonymousBased.login.tokenIsNotAllowedToLogin", body["key"])
}
