package httpapi

import (
	"net/http"

	"github.com/lightbasehq/corehub/internal/authproviders/anonymous"
)

type anonymousLoginRequest struct {
	LoginToken string     `json:"loginToken"`
	Device     *deviceDTO `json:"device,omitempty"`
}

func (a *App) handleAnonymousLogin(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	var req anonymousLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, pair, err := a.Anonymous.Login(r.Context(), anonymous.LoginInput{
		TenantID: t.Tenant.ID, LoginToken: req.LoginToken,
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
