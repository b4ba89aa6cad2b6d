package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type requestMagicLinkRequest struct {
	UserID  string `json:"userId"`
	BaseURL string `json:"baseUrl"`
}

// handleRequestMagicLink backs POST /_lightbase/management/request-magic-link.
// In development the link is returned in the response body instead of
// being delivered over the configured messaging platform.
func (a *App) handleRequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req requestMagicLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	link, err := a.Management.RequestMagicLink(r.Context(), req.UserID, req.BaseURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := map[string]string{}
	if link != "" {
		resp["link"] = link
	}
	writeJSON(w, http.StatusOK, resp)
}

type redeemMagicLinkRequest struct {
	Token string `json:"token"`
}

// handleRedeemMagicLink issues the elevated operator session behind a
// magic-link token.
func (a *App) handleRedeemMagicLink(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	var req redeemMagicLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, pair, err := a.Management.Redeem(r.Context(), req.Token, t.Tenant.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, passwordLoginResponse{
		Session: sessionView{ID: sess.ID, Type: string(sess.Type), LoginType: string(sess.LoginType)},
		Tokens:  &tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
	})
}

// handleGetTenant backs GET /_lightbase/management/tenant/{name}: the
// operator-facing tenant lookup, served through the replicated cache
// rather than the in-process Resolver, so it reflects the durable
// catalog other replicas have synced into storage.
func (a *App) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, err := a.TenantCache.GetByName(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       t.ID,
		"name":     t.Name,
		"disabled": t.Disabled,
	})
}
