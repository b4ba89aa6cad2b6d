// Package keycloak implements the federated OIDC provider (spec.md
// §4.5.4): authorization-code exchange against a Keycloak realm and
// just-in-time user provisioning.
package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/eventbus"
	"github.com/lightbasehq/corehub/internal/session"
	"github.com/lightbasehq/corehub/internal/user"
)

// Config is the realm-specific wiring plus the two tenant-provisioning
// policy knobs spec.md §4.5.4 names.
type Config struct {
	Issuer                 string // e.g. https://idp.example.com/realms/corehub
	ClientID               string
	ClientSecret           string
	RedirectURI            string
	ImplicitlyCreateUsers  bool
	SingleTenant           bool
	HTTPTimeout            time.Duration
}

type Provider struct {
	logins domain.KeycloakLoginRepository
	users  *user.Directory
	tail   *authproviders.Tail
	bus    eventbus.Bus
	cfg    Config
	client *http.Client
}

func New(logins domain.KeycloakLoginRepository, users *user.Directory, tail *authproviders.Tail, bus eventbus.Bus, cfg Config) *Provider {
	return &Provider{logins: logins, users: users, tail: tail, bus: bus, cfg: cfg, client: &http.Client{Timeout: cfg.HTTPTimeout}}
}

// RedirectURL constructs the standard authorization-code URL.
func (p *Provider) RedirectURL(state, nonce string) string {
	v := url.Values{}
	v.Set("client_id", p.cfg.ClientID)
	v.Set("redirect_uri", p.cfg.RedirectURI)
	v.Set("response_type", "code")
	v.Set("scope", "openid email profile")
	v.Set("state", state)
	v.Set("nonce", nonce)
	return fmt.Sprintf("%s/protocol/openid-connect/auth?%s", p.cfg.Issuer, v.Encode())
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type userInfoResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// exchangeCode performs the code-for-token exchange using HTTP Basic
// client-credential auth, then reads /userinfo with the access token.
func (p *Provider) exchangeCode(ctx context.Context, code string) (userInfoResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Issuer+"/protocol/openid-connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return userInfoResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)

	resp, err := p.client.Do(req)
	if err != nil {
		return userInfoResponse{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return userInfoResponse{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return userInfoResponse{}, fmt.Errorf("keycloak: token exchange failed with status %d: %s", resp.StatusCode, body)
	}
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return userInfoResponse{}, err
	}

	infoReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Issuer+"/protocol/openid-connect/userinfo", nil)
	if err != nil {
		return userInfoResponse{}, err
	}
	infoReq.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	infoResp, err := p.client.Do(infoReq)
	if err != nil {
		return userInfoResponse{}, err
	}
	defer infoResp.Body.Close()
	infoBody, err := io.ReadAll(infoResp.Body)
	if err != nil {
		return userInfoResponse{}, err
	}
	var info userInfoResponse
	if err := json.Unmarshal(infoBody, &info); err != nil {
		return userInfoResponse{}, err
	}
	return info, nil
}

// LoginInput backs the code-exchange login step.
type LoginInput struct {
	TenantID          string
	Code              string
	AllTenantIDs       []string // not read by Login; a user it creates is registered in TenantID only
	ExistingSessionID string
	Device            *authproviders.DeviceInfo
}

func (p *Provider) Login(ctx context.Context, in LoginInput) (domain.Session, session.TokenPair, error) {
	info, err := p.exchangeCode(ctx, in.Code)
	if err != nil {
		return domain.Session{}, session.TokenPair{}, apperr.Server("server.internal.authKeycloakBased.login", err)
	}

	kl, err := p.logins.GetBySubject(ctx, in.TenantID, info.Email)
	var u domain.User
	switch {
	case err == domain.ErrNotFound:
		if !p.cfg.ImplicitlyCreateUsers {
			return domain.Session{}, session.TokenPair{}, apperr.Unauthorized("authKeycloakBased.login.unknownUser")
		}
		created, err := p.users.Create(ctx, user.CreateInput{
			DisplayName: nameOrNil(info.Name),
			Tenants:     []string{in.TenantID},
		})
		if err != nil {
			return domain.Session{}, session.TokenPair{}, err
		}
		u = created
		if err := p.users.CheckKeycloakEmailUnique(ctx, in.TenantID, info.Email, u.ID); err != nil {
			return domain.Session{}, session.TokenPair{}, err
		}
		if _, err := p.logins.Create(ctx, domain.KeycloakLogin{UserID: u.ID, TenantID: in.TenantID, Subject: info.Email}); err != nil {
			return domain.Session{}, session.TokenPair{}, apperr.Server("server.internal.authKeycloakBased.login", err)
		}
		_ = p.bus.Enqueue(ctx, eventbus.Event{Name: "auth.keycloakBased.userRegistered", Payload: map[string]any{"userId": u.ID, "email": info.Email}})
	case err != nil:
		return domain.Session{}, session.TokenPair{}, apperr.Server("server.internal.authKeycloakBased.login", err)
	default:
		loaded, err := p.users.Lookup(ctx, kl.UserID)
		if err != nil {
			return domain.Session{}, session.TokenPair{}, err
		}
		u = loaded
		if u.DisplayName == nil && info.Name != "" {
			if err := p.users.UpdateDisplayName(ctx, u.ID, &info.Name); err != nil {
				return domain.Session{}, session.TokenPair{}, err
			}
			u.DisplayName = &info.Name
		}
		isMember, err := p.users.IsMember(ctx, u.ID, in.TenantID)
		if err != nil {
			return domain.Session{}, session.TokenPair{}, err
		}
		if !isMember {
			if !p.cfg.ImplicitlyCreateUsers {
				return domain.Session{}, session.TokenPair{}, apperr.Forbidden("authKeycloakBased.login.notAMember")
			}
			if p.cfg.SingleTenant {
				return domain.Session{}, session.TokenPair{}, apperr.Forbidden("authKeycloakBased.login.singleTenantRestriction")
			}
			if err := p.users.AddTenant(ctx, u.ID, in.TenantID, ""); err != nil {
				return domain.Session{}, session.TokenPair{}, err
			}
		}
	}

	if err := p.users.UpdateLastLogin(ctx, u.ID, time.Now()); err != nil {
		return domain.Session{}, session.TokenPair{}, err
	}

	return p.tail.Run(ctx, "authKeycloakBased", authproviders.TailInput{
		UserID: u.ID, TenantID: in.TenantID,
		Type: domain.SessionTypeUser, LoginType: domain.LoginTypeKeycloak, TwoStep: domain.TwoStepNone,
		ExistingSessionID: in.ExistingSessionID, Device: in.Device,
	})
}

// AdminCreate provisions a user with a keycloak binding directly,
// bypassing the authorization-code exchange — the "create" operation
// an operator uses to pre-bind a subject before its first login.
func (p *Provider) AdminCreate(ctx context.Context, tenantID, subject string, displayName *string) (domain.User, error) {
	u, err := p.users.Create(ctx, user.CreateInput{DisplayName: displayName, Tenants: []string{tenantID}})
	if err != nil {
		return domain.User{}, err
	}
	if err := p.users.CheckKeycloakEmailUnique(ctx, tenantID, subject, u.ID); err != nil {
		return domain.User{}, err
	}
	if _, err := p.logins.Create(ctx, domain.KeycloakLogin{UserID: u.ID, TenantID: tenantID, Subject: subject}); err != nil {
		return domain.User{}, apperr.Server("server.internal.authKeycloakBased.adminCreate", err)
	}
	_ = p.bus.Enqueue(ctx, eventbus.Event{Name: "auth.keycloakBased.userRegistered", Payload: map[string]any{"userId": u.ID, "email": subject}})
	return u, nil
}

// AdminUpdateSubject re-binds userID's keycloak login in tenantID to a
// new subject, the "user/:id/update" operation.
func (p *Provider) AdminUpdateSubject(ctx context.Context, userID, tenantID, newSubject string) error {
	kl, err := p.logins.GetByUserID(ctx, tenantID, userID)
	if err == domain.ErrNotFound {
		return apperr.Validation("authKeycloakBased.adminUpdate.noKeycloakLogin")
	}
	if err != nil {
		return apperr.Server("server.internal.authKeycloakBased.adminUpdate", err)
	}
	if err := p.users.CheckKeycloakEmailUnique(ctx, tenantID, newSubject, userID); err != nil {
		return err
	}
	if err := p.logins.UpdateSubject(ctx, kl.ID, newSubject); err != nil {
		return apperr.Server("server.internal.authKeycloakBased.adminUpdate", err)
	}
	return nil
}

func nameOrNil(name string) *string {
	if name == "" {
		return nil
	}
	return &name
}

// NewState issues a fresh state/nonce pair for an authorization-code
// flow in progress.
func NewState() (state, nonce string) {
	return uuid.NewString(), uuid.NewString()
}
