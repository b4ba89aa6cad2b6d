package httpapi

import (
	"net/http"

	"github.com/lightbasehq/corehub/internal/apperr"
)

// handleCurrentTenant backs GET /multitenant/current: the tenant the
// request resolved to, without any of the operator fields (data/
// urlConfig) — just the identity the client needs to label itself.
func (a *App) handleCurrentTenant(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"id":        t.Tenant.ID,
		"publicUrl": t.PublicURL,
		"apiUrl":    t.APIUrl,
	})
}

// handleCurrentFeatureFlags backs GET /feature-flag/current: every
// declared flag resolved for the caller's tenant.
func (a *App) handleCurrentFeatureFlags(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	set, err := a.FeatureFlags.ResolveCurrentSet(r.Context(), t.Tenant.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flags": set})
}

type setFeatureFlagRequest struct {
	Name      string          `json:"name"`
	Global    *bool           `json:"global,omitempty"`
	PerTenant map[string]bool `json:"perTenant,omitempty"`
}

// handleSetFeatureFlag is the operator write, guarded by
// requirePermission(auth:featureFlag:manage) at the router.
func (a *App) handleSetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	var req setFeatureFlagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name == "" {
		writeError(w, r, apperr.Validation("authFeatureFlag.setDynamic.missingName"))
		return
	}
	if err := a.FeatureFlags.SetDynamic(r.Context(), req.Name, req.Global, req.PerTenant); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
