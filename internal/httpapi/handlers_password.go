package httpapi

import (
	"net/http"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/authproviders/password"
	"github.com/lightbasehq/corehub/internal/domain"
)

type deviceDTO struct {
	Identity   string `json:"identity"`
	Platform   string `json:"platform"`
	AppVersion string `json:"appVersion"`
}

func (d *deviceDTO) toDomain() *authproviders.DeviceInfo {
	if d == nil {
		return nil
	}
	return &authproviders.DeviceInfo{Identity: d.Identity, Platform: d.Platform, AppVersion: d.AppVersion}
}

// existingSessionID lets a login/verify call chain off an already-loaded
// checkTwoStep session — the tail invalidates it before issuing the
// replacement, per spec.md §4.5's shared protocol.
func existingSessionID(r *http.Request) string {
	if s := sessionFromCtx(r.Context()); s != nil {
		return s.ID
	}
	return ""
}

type passwordLoginRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Device   *deviceDTO `json:"device,omitempty"`
}

type passwordLoginResponse struct {
	Session      sessionView        `json:"session"`
	Tokens       *tokenPairResponse `json:"tokens,omitempty"`
	NeedsTwoStep bool               `json:"needsTwoStep"`
}

func (a *App) handlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	var req passwordLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.Password.Login(r.Context(), password.LoginInput{
		TenantID: t.Tenant.ID, Email: req.Email, Password: req.Password,
		ExistingSessionID: existingSessionID(r), Device: req.Device.toDomain(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, passwordLoginResponse{
		Session:      sessionView{ID: res.Session.ID, Type: string(res.Session.Type), LoginType: string(res.Session.LoginType), TwoStepType: string(res.Session.TwoStep)},
		Tokens:       &tokenPairResponse{AccessToken: res.Tokens.AccessToken, RefreshToken: res.Tokens.RefreshToken},
		NeedsTwoStep: res.NeedsTwoStep,
	})
}

type verifyOtpRequest struct {
	Code string `json:"code"`
}

// handlePasswordVerifyOtp implements the runtime second-factor check:
// on success, the caller's checkTwoStep session is promoted by issuing a
// fresh full session through the same tail the initial login used.
func (a *App) handlePasswordVerifyOtp(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	if sess == nil || sess.Type != domain.SessionTypeCheckTwoStep {
		writeError(w, r, apperr.Validation("authPasswordBased.verifyOtp.notPending"))
		return
	}
	var req verifyOtpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ok, err := a.Password.VerifyLoginOTP(r.Context(), sess.UserID, sess.TenantID, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, apperr.Unauthorized("authPasswordBased.verifyOtp.invalidCode"))
		return
	}
	newSess, pair, err := a.Tail.Run(r.Context(), "authPasswordBased", authproviders.TailInput{
		UserID: sess.UserID, TenantID: sess.TenantID,
		Type: domain.SessionTypeUser, LoginType: domain.LoginTypePassword, TwoStep: domain.TwoStepNone,
		ExistingSessionID: sess.ID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, passwordLoginResponse{
		Session: sessionView{ID: newSess.ID, Type: string(newSess.Type), LoginType: string(newSess.LoginType)},
		Tokens:  &tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
	})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (a *App) handlePasswordVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Password.VerifyEmail(r.Context(), req.Token); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (a *App) handlePasswordForgot(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Password.ForgotPassword(r.Context(), t.Tenant.ID, req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (a *App) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Password.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) handlePasswordListEmails(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	logins, err := a.Password.ListEmails(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	type entry struct {
		TenantID string `json:"tenantId"`
		Email    string `json:"email"`
	}
	out := make([]entry, 0, len(logins))
	for _, l := range logins {
		out = append(out, entry{TenantID: l.TenantID, Email: l.Email})
	}
	writeJSON(w, http.StatusOK, map[string]any{"emails": out})
}

type updateEmailRequest struct {
	NewEmail string `json:"newEmail"`
}

func (a *App) handlePasswordUpdateEmail(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	var req updateEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, err := a.Password.UpdateEmail(r.Context(), sess.UserID, sess.TenantID, req.NewEmail)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type updatePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

func (a *App) handlePasswordUpdatePassword(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	var req updatePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Password.UpdatePassword(r.Context(), sess.UserID, sess.TenantID, sess.ID, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
