package httpapi

import (
	"net/http"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/domain"
)

type sessionView struct {
	ID                 string  `json:"id"`
	Type               string  `json:"type"`
	LoginType          string  `json:"loginType,omitempty"`
	TwoStepType        string  `json:"twoStepType,omitempty"`
	ImpersonatorUserID *string `json:"impersonatorUserId,omitempty"`
}

type userSummaryView struct {
	ID          string   `json:"id"`
	DisplayName *string  `json:"displayName,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type meResponse struct {
	Session sessionView      `json:"session"`
	User    *userSummaryView `json:"user,omitempty"`
}

// handleMe implements GET /auth/me: the user field is omitted while the
// session is still in the checkTwoStep intermediate state (spec.md §6).
func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	if sess == nil {
		writeError(w, r, apperr.Unauthorized("session.require.missing"))
		return
	}
	resp := meResponse{Session: sessionView{
		ID: sess.ID, Type: string(sess.Type), LoginType: string(sess.LoginType), TwoStepType: string(sess.TwoStep),
		ImpersonatorUserID: sess.ImpersonatorUserID,
	}}
	if sess.Type != domain.SessionTypeCheckTwoStep {
		u, err := a.Users.Lookup(r.Context(), sess.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		summary, err := a.Perms.UserSummary(r.Context(), sess.UserID, sess.TenantID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.User = &userSummaryView{ID: u.ID, DisplayName: u.DisplayName, Roles: summary.Roles, Permissions: summary.Permissions}
	}
	writeJSON(w, http.StatusOK, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (a *App) handleRefreshTokens(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	_, pair, err := a.Sessions.Refresh(r.Context(), req.RefreshToken, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	if err := apperr.NormalizeSessionError(a.Sessions.Invalidate(r.Context(), sess.ID)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleImpersonateStopSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	if err := a.Impersonation.StopSession(r.Context(), *sess); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handleSessionList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	sessions, err := a.Sessions.ListActiveForUser(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, r, apperr.Server("server.internal.session.list", err))
		return
	}
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{ID: s.ID, Type: string(s.Type), LoginType: string(s.LoginType), TwoStepType: string(s.TwoStep), ImpersonatorUserID: s.ImpersonatorUserID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

type sessionLogoutRequest struct {
	SessionID string `json:"sessionId"`
}

// handleSessionLogout revokes a specific session belonging to the caller
// — distinct from /auth/logout, which always revokes the session the
// bearer token itself authenticated.
func (a *App) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	var req sessionLogoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sessions, err := a.Sessions.ListActiveForUser(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, r, apperr.Server("server.internal.session.logout", err))
		return
	}
	owned := false
	for _, s := range sessions {
		if s.ID == req.SessionID {
			owned = true
			break
		}
	}
	if !owned {
		writeError(w, r, apperr.Forbidden("session.logout.notOwner"))
		return
	}
	if err := apperr.NormalizeSessionError(a.Sessions.Invalidate(r.Context(), req.SessionID)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type setNotificationTokenRequest struct {
	Token string `json:"token"`
}

func (a *App) handleSetNotificationToken(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	if sess.DeviceID == nil {
		writeError(w, r, apperr.Validation("session.setNotificationToken.noDevice"))
		return
	}
	var req setNotificationTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Tail.Devices.SetNotificationToken(r.Context(), *sess.DeviceID, req.Token); err != nil {
		writeError(w, r, apperr.Server("server.internal.session.setNotificationToken", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
