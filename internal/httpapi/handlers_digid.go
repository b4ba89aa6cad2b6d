package httpapi

import (
	"net/http"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/authproviders/digid"
)

// handleDigidMetadata serves the SAML service-provider metadata document
// the IdP fetches once at registration time.
func (a *App) handleDigidMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := a.Digid.Metadata()
	if err != nil {
		writeError(w, r, apperr.Server("server.internal.authDigidBased.metadata", err))
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(meta)
}

type digidRedirectRequest struct {
	IdpSSOURL  string `json:"idpSsoUrl"`
	RelayState string `json:"relayState"`
}

func (a *App) handleDigidRedirect(w http.ResponseWriter, r *http.Request) {
	var req digidRedirectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	url, err := a.Digid.Redirect(req.IdpSSOURL, req.RelayState)
	if err != nil {
		writeError(w, r, apperr.Server("server.internal.authDigidBased.redirect", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirectUrl": url})
}

type digidLoginRequest struct {
	SAMLArtifact string     `json:"samlArtifact"`
	Device       *deviceDTO `json:"device,omitempty"`
}

func (a *App) handleDigidLogin(w http.ResponseWriter, r *http.Request) {
	t := tenantFromCtx(r.Context())
	var req digidLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	bsn, err := a.Digid.ResolveArtifact(r.Context(), req.SAMLArtifact)
	if err != nil {
		writeError(w, r, apperr.Server("server.internal.authDigidBased.resolveArtifact", err))
		return
	}
	sess, pair, err := a.Digid.Login(r.Context(), digid.LoginInput{
		TenantID: t.Tenant.ID, BSN: bsn,
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
