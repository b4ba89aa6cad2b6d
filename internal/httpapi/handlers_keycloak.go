package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lightbasehq/corehub/internal/authproviders/keycloak"
)

func (a *App) handleKeycloakRedirect(w http.ResponseWriter, r *http.Request) {
	state, nonce := keycloak.NewState()
	writeJSON(w, http.StatusOK, map[string]string{
		"redirectUrl": a.Keycloak.RedirectURL(state, nonce),
		"state":       state,
		"nonce":       nonce,
	})
}

type keycloakLoginRequest struct {
	Code   string     `json:"code"`
	Device *deviceDTO `json:"device,omitempty"`
}

func (a *App) handleKeycloakLogin(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	var req keycloakLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, pair, err := a.Keycloak.Login(r.Context(), keycloak.LoginInput{
		TenantID: t.Tenant.ID, Code: req.Code,
		ExistingSessionID: existingSessionID(r), Device: req.Device.toDomain(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, passwordLoginResponse{
		Session: sessionView{ID: sess.ID, Type: string(sess.Type), LoginType: string(sess.LoginType)},
		Tokens:  &tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
	})
}

type keycloakCreateRequest struct {
	Subject     string  `json:"subject"`
	DisplayName *string `json:"displayName,omitempty"`
}

// handleKeycloakCreate pre-binds a subject to a new user, guarded by
// auth:user:manage via the router's requirePermission wrapper.
func (a *App) handleKeycloakCreate(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	var req keycloakCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := a.Keycloak.AdminCreate(r.Context(), t.Tenant.ID, req.Subject, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": u.ID})
}

type keycloakUpdateRequest struct {
	NewSubject string `json:"newSubject"`
}

func (a *App) handleKeycloakUserUpdate(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	userID := chi.URLParam(r, "id")
	var req keycloakUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Keycloak.AdminUpdateSubject(r.Context(), userID, t.Tenant.ID, req.NewSubject); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
