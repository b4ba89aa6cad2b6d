package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lightbasehq/corehub/internal/domain"
)

type roleView struct {
	ID          string   `json:"id"`
	Identifier  string   `json:"identifier"`
	TenantID    *string  `json:"tenantId,omitempty"`
	Mandatory   bool     `json:"mandatory"`
	Permissions []string `json:"permissions"`
	IsEditable  bool     `json:"isEditable"`
}

func toRoleView(r domain.Role, editable bool) roleView {
	return roleView{ID: r.ID, Identifier: r.Identifier, TenantID: r.TenantID, Mandatory: r.Mandatory, Permissions: r.Permissions, IsEditable: editable}
}

// handlePermissionListRoles lists every role visible to the caller's
// tenant, guarded by requirePermission(auth:permission:manage).
func (a *App) handlePermissionListRoles(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	roles, err := a.Perms.ListRoles(r.Context(), t.Tenant.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]roleView, 0, len(roles))
	for _, rv := range roles {
		out = append(out, toRoleView(rv.Role, rv.IsEditable))
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (a *App) handlePermissionListPermissions(w http.ResponseWriter, r *http.Request) {
	perms := a.Cfg.Permissions.Declared
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

type createRoleRequest struct {
	Identifier  string   `json:"identifier"`
	Permissions []string `json:"permissions"`
}

func (a *App) handlePermissionCreateRole(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := a.Perms.CreateRole(r.Context(), t.Tenant.ID, req.Identifier, req.Permissions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleView(role, true))
}

func (a *App) handlePermissionDeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")
	if err := a.Perms.DeleteRole(r.Context(), roleID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type rolePermissionsRequest struct {
	Permission string `json:"permission"`
}

func (a *App) handlePermissionAddToRole(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")
	var req rolePermissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Perms.AddPermission(r.Context(), roleID, req.Permission); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handlePermissionRemoveFromRole(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")
	var req rolePermissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Perms.RemovePermission(r.Context(), roleID, req.Permission); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type assignRoleRequest struct {
	RoleID string `json:"roleId"`
}

func (a *App) handlePermissionAssignUserRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req assignRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Perms.AssignUserRole(r.Context(), userID, req.RoleID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handlePermissionRemoveUserRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req assignRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Perms.RemoveUserRole(r.Context(), userID, req.RoleID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handlePermissionUserSummary backs both GET /auth/permission/user/:id/summary
// (operator read) and GET /auth/permission/summary (the caller's own
// session, id defaulted to the session's user).
func (a *App) handlePermissionUserSummary(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	userID := chi.URLParam(r, "id")
	if userID == "" {
		sess := sessionFromCtx(r.Context())
		userID = sess.UserID
	}
	summary, err := a.Perms.UserSummary(r.Context(), userID, t.Tenant.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": summary.Roles, "permissions": summary.Permissions})
}
