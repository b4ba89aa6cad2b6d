package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type userView struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"displayName,omitempty"`
	Active      bool    `json:"active"`
}

// handleListUsers pages through the caller's tenant membership, guarded
// by requirePermission(auth:user:list) at the router.
func (a *App) handleListUsers(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)

	users, err := a.Users.ListByTenant(r.Context(), t.Tenant.ID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userView{ID: u.ID, DisplayName: u.DisplayName, Active: !u.IsDeleted()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

// handleGetUser reads a single user by id, guarded by
// requirePermission(auth:user:list).
func (a *App) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	u, err := a.Users.Lookup(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userView{ID: u.ID, DisplayName: u.DisplayName, Active: !u.IsDeleted()})
}

type updateUserRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
}

// handleUpdateUser is the operator rename path, guarded by
// requirePermission(auth:user:manage).
func (a *App) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Users.UpdateDisplayName(r.Context(), userID, req.DisplayName); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// handleSetUserActive soft-deletes or reactivates a user, guarded by
// requirePermission(auth:user:manage).
func (a *App) handleSetUserActive(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Users.SetActive(r.Context(), userID, req.Active); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
