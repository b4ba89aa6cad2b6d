package management

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/config"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/eventbus"
	"github.com/lightbasehq/corehub/internal/permission"
	"github.com/lightbasehq/corehub/internal/session"
	"github.com/lightbasehq/corehub/internal/user"
)

type fakeDirectory struct {
	knownOperators map[string]bool
	purged         []string
}

func (d *fakeDirectory) IsKnownOperator(ctx context.Context, userID string) (bool, error) {
	return d.knownOperators[userID], nil
}
func (d *fakeDirectory) DeliverMagicLink(ctx context.Context, userID, link string) (string, error) {
	return "thread-" + userID, nil
}
func (d *fakeDirectory) PurgeThread(ctx context.Context, threadID string) error {
	d.purged = append(d.purged, threadID)
	return nil
}

type fakeStore struct {
	links     map[string]Link
	transient map[string]TransientUser
}

func newFakeStore() *fakeStore {
	return &fakeStore{links: make(map[string]Link), transient: make(map[string]TransientUser)}
}

func (s *fakeStore) CreateLink(ctx context.Context, l Link) (Link, error) {
	s.links[l.Token] = l
	return l, nil
}
func (s *fakeStore) GetLink(ctx context.Context, token string) (Link, error) {
	l, ok := s.links[token]
	if !ok {
		return Link{}, domain.ErrNotFound
	}
	return l, nil
}
func (s *fakeStore) ConsumeLink(ctx context.Context, token string, at time.Time) error {
	l := s.links[token]
	l.ConsumedAt = &at
	s.links[token] = l
	return nil
}
func (s *fakeStore) ListExpiredTransientUsers(ctx context.Context, olderThan time.Time) ([]TransientUser, error) {
	var out []TransientUser
	for _, t := range s.transient {
		out = append(out, t)
	}
	return out, nil
}
func (s *fakeStore) DeleteTransientUser(ctx context.Context, userID string) error {
	delete(s.transient, userID)
	return nil
}
func (s *fakeStore) RecordTransientUser(ctx context.Context, userID, threadID string) error {
	s.transient[userID] = TransientUser{UserID: userID, ThreadID: threadID}
	return nil
}

type fakeUserRepo struct{ users map[string]domain.User }

func newFakeUserRepo() *fakeUserRepo { return &fakeUserRepo{users: make(map[string]domain.User)} }

func (r *fakeUserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = "u-" + string(rune('0'+len(r.users)+1))
	}
	r.users[u.ID] = u
	return u, nil
}
func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}
func (r *fakeUserRepo) Update(ctx context.Context, u domain.User) error { r.users[u.ID] = u; return nil }
func (r *fakeUserRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	u := r.users[id]
	u.DeletedAt = &at
	r.users[id] = u
	return nil
}
func (r *fakeUserRepo) Reactivate(ctx context.Context, id string) error              { return nil }
func (r *fakeUserRepo) AddTenant(ctx context.Context, userID, tenantID string) error { return nil }
func (r *fakeUserRepo) RemoveTenant(ctx context.Context, userID, tenantID string) error {
	return nil
}
func (r *fakeUserRepo) ListTenants(ctx context.Context, userID string) ([]domain.UserTenant, error) {
	return nil, nil
}
func (r *fakeUserRepo) IsMember(ctx context.Context, userID, tenantID string) (bool, error) {
	return true, nil
}
func (r *fakeUserRepo) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]domain.User, error) {
	return nil, nil
}
func (r *fakeUserRepo) Merge(ctx context.Context, winnerID, loserID string) error { return nil }

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
	byID map[string]domain.Session
	seq  int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{byID: make(map[string]domain.Session)}
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
	r.byID[s.ID] = s
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
	return nil, nil
}
func (r *fakeSessionRepo) AppendToken(ctx context.Context, t domain.SessionToken) (domain.SessionToken, error) {
	return t, nil
}
func (r *fakeSessionRepo) GetToken(ctx context.Context, sessionID, tokenID string) (domain.SessionToken, error) {
	return domain.SessionToken{}, domain.ErrNotFound
}
func (r *fakeSessionRepo) MarkTokenUsed(ctx context.Context, id string, at time.Time) error {
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

func newTestService(t *testing.T, cfg config.Config) (*Service, *fakeDirectory, *fakeStore) {
	t.Helper()
	dir := &fakeDirectory{knownOperators: map[string]bool{"op-1": true}}
	store := newFakeStore()
	users := user.New(newFakeUserRepo(), nil, nil, permission.New(fakePermRepo{}), eventbus.NewMemoryBus())
	issuer := session.NewIssuer("top-secret", 15*time.Minute, 720*time.Hour)
	sess := session.NewStore(issuer, newFakeSessionRepo(), "checksum-secret")
	tail := authproviders.New(sess, fakeDevices{}, authproviders.Config{})
	return New(dir, store, users, tail, sess, eventbus.NewMemoryBus(), cfg), dir, store
}

func baseConfig() config.Config {
	var cfg config.Config
	cfg.Management.Enabled = true
	cfg.Management.AllowedUserID = "op-1"
	cfg.App.Env = config.EnvDevelopment
	return cfg
}

func TestRequestMagicLink_RejectsDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.Management.Enabled = false
	s, _, _ := newTestService(t, cfg)

	_, err := s.RequestMagicLink(context.Background(), "op-1", "https://admin.example.test/management")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, "authManagement.requestMagicLink.disabled"))
}

func TestRequestMagicLink_RejectsUnknownOperator(t *testing.T) {
	s, _, _ := newTestService(t, baseConfig())

	_, err := s.RequestMagicLink(context.Background(), "someone-else", "https://admin.example.test/management")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, "authManagement.requestMagicLink.unknownOperator"))
}

func TestRequestMagicLink_ReturnsLinkInlineInDevelopment(t *testing.T) {
	s, _, store := newTestService(t, baseConfig())

	link, err := s.RequestMagicLink(context.Background(), "op-1", "https://admin.example.test/management")
	require.NoError(t, err)
	assert.Contains(t, link, "https://admin.example.test/management?token=")
	assert.Len(t, store.links, 1)
}

func TestRedeem_IssuesElevatedSessionAndRecordsTransientUser(t *testing.T) {
	s, _, store := newTestService(t, baseConfig())
	link, err := s.RequestMagicLink(context.Background(), "op-1", "https://admin.example.test/management")
	require.NoError(t, err)
	token := link[len(link)-64:]

	sess, pair, err := s.Redeem(context.Background(), token, "acme")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionTypeUser, sess.Type)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Len(t, store.transient, 1)

	_, _, err = s.Redeem(context.Background(), token, "acme")
	require.Error(t, err, "a consumed magic link must not redeem twice")
	assert.True(t, apperr.Is(err, "authManagement.redeem.invalidToken"))
}

func TestCleanupExpired_DeletesTransientUsersAndPurgesThreads(t *testing.T) {
	s, dir, store := newTestService(t, baseConfig())
	link, err := s.RequestMagicLink(context.Background(), "op-1", "https://admin.example.test/management")
	require.NoError(t, err)
	token := link[len(link)-64:]
	_, _, err = s.Redeem(context.Background(), token, "acme")
	require.NoError(t, err)
	require.Len(t, store.transient, 1)

	n, err := s.CleanupExpired(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, store.transient)
	assert.Len(t, dir.purged, 1)
}
