package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/domain"
)

func (a *App) handleTotpInfo(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	info, err := a.Totp.Info(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"setUp": info.SetUp, "confirmed": info.Confirmed})
}

type totpSetupRequest struct {
	AccountLabel string `json:"accountLabel"`
}

func (a *App) handleTotpSetup(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	var req totpSetupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.Totp.Setup(r.Context(), sess.UserID, req.AccountLabel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"secret": res.Secret, "url": res.URL})
}

type totpCodeRequest struct {
	Code string `json:"code"`
}

func (a *App) handleTotpSetupVerify(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	var req totpCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Totp.SetupVerify(r.Context(), sess.UserID, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleTotpVerify is the runtime second factor check: on success the
// caller's checkTwoStep session is promoted via the shared tail, keeping
// the login type it already held.
func (a *App) handleTotpVerify(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	if sess == nil || sess.Type != domain.SessionTypeCheckTwoStep {
		writeError(w, r, apperr.Validation("authTotp.verify.notPending"))
		return
	}
	var req totpCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ok, err := a.Totp.Verify(r.Context(), sess.UserID, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, apperr.Unauthorized("authTotp.verify.invalidCode"))
		return
	}
	newSess, pair, err := a.Tail.Run(r.Context(), "authTotp", authproviders.TailInput{
		UserID: sess.UserID, TenantID: sess.TenantID,
		Type: domain.SessionTypeUser, LoginType: sess.LoginType, TwoStep: domain.TwoStepTotp,
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

func (a *App) handleTotpRemove(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	if err := a.Totp.Remove(r.Context(), sess.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleTotpRemoveForUser is the operator path, guarded by
// requirePermission(auth:totp:manage) at the router.
func (a *App) handleTotpRemoveForUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if err := a.Totp.RemoveForUser(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
