// Package digid implements the BSN/SAML federation provider (spec.md
// §4.5.3): metadata publication, AuthnRequest redirect construction, and
// back-channel artifact resolution against the DigiD IdP.
package digid

import (
	"bytes"
	"compress/flate"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/eventbus"
	"github.com/lightbasehq/corehub/internal/session"
	"github.com/lightbasehq/corehub/internal/user"
)

// Config carries the deployment-specific SAML federation material:
// the service provider's key pair, the IdP's signing certificate, the
// back-channel artifact-resolution URL (staging vs production, per
// spec.md §4.5.3 step 3), and a CA bundle for the mutual-TLS call.
type Config struct {
	Issuer               string
	AcsURL               string
	ArtifactResolveURL   string
	ServiceProvider       saml.ServiceProvider
	IDPCertificate       *x509.Certificate
	MutualTLSCertificate tls.Certificate
	CAPool               *x509.CertPool
	HTTPTimeout          time.Duration
}

// Provider mediates every DigiD operation.
type Provider struct {
	logins domain.DigidLoginRepository
	users  *user.Directory
	tail   *authproviders.Tail
	bus    eventbus.Bus
	cfg    Config
}

func New(logins domain.DigidLoginRepository, users *user.Directory, tail *authproviders.Tail, bus eventbus.Bus, cfg Config) *Provider {
	return &Provider{logins: logins, users: users, tail: tail, bus: bus, cfg: cfg}
}

// Metadata returns the service provider's SAML metadata document, used
// for out-of-band federation onboarding. The document is not signed.
func (p *Provider) Metadata() ([]byte, error) {
	desc := p.cfg.ServiceProvider.Metadata()
	return xml.MarshalIndent(desc, "", "  ")
}

// Redirect builds and signs an AuthnRequest, returning the IdP URL with
// it attached as a query parameter: deflate + base64 + URL-encode, plus
// an RSA-SHA256 signature over "SAMLRequest|SigAlg" (the redirect-binding
// signing scheme, distinct from the XML <Signature> elements that
// verifySignatures checks in artifact responses).
func (p *Provider) Redirect(idpSSOURL, relayState string) (string, error) {
	req, err := p.cfg.ServiceProvider.MakeAuthenticationRequest(idpSSOURL, saml.HTTPRedirectBinding, saml.HTTPArtifactBinding)
	if err != nil {
		return "", apperr.Server("server.internal.authDigidBased.redirect", err)
	}
	raw, err := xml.Marshal(req)
	if err != nil {
		return "", apperr.Server("server.internal.authDigidBased.redirect", err)
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", apperr.Server("server.internal.authDigidBased.redirect", err)
	}
	if _, err := w.Write(raw); err != nil {
		return "", apperr.Server("server.internal.authDigidBased.redirect", err)
	}
	if err := w.Close(); err != nil {
		return "", apperr.Server("server.internal.authDigidBased.redirect", err)
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	const sigAlg = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	signed, err := p.signRedirect(encoded, relayState, sigAlg)
	if err != nil {
		return "", apperr.Server("server.internal.authDigidBased.redirect", err)
	}

	u, err := url.Parse(idpSSOURL)
	if err != nil {
		return "", apperr.Server("server.internal.authDigidBased.redirect", err)
	}
	q := u.Query()
	q.Set("SAMLRequest", encoded)
	if relayState != "" {
		q.Set("RelayState", relayState)
	}
	q.Set("SigAlg", sigAlg)
	q.Set("Signature", signed)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// signRedirect implements the redirect-binding signature scheme: RSA-
// SHA256 over "SAMLRequest=<value>&SigAlg=<value>" (and RelayState, when
// present, inserted between the two per the SAML redirect-binding spec),
// base64-encoded for the Signature query parameter.
func (p *Provider) signRedirect(samlRequest, relayState, sigAlg string) (string, error) {
	if p.cfg.ServiceProvider.Key == nil {
		return "", fmt.Errorf("digid: no service-provider signing key configured")
	}
	var signer crypto.Signer = p.cfg.ServiceProvider.Key
	var toSign strings.Builder
	toSign.WriteString("SAMLRequest=")
	toSign.WriteString(url.QueryEscape(samlRequest))
	if relayState != "" {
		toSign.WriteString("&RelayState=")
		toSign.WriteString(url.QueryEscape(relayState))
	}
	toSign.WriteString("&SigAlg=")
	toSign.WriteString(url.QueryEscape(sigAlg))

	digest := sha256.Sum256([]byte(toSign.String()))
	sig, err := signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func newRequestID() string {
	return "_" + uuid.NewString()
}

// soapArtifactResolve is the minimal SOAP envelope the IdP's
// back-channel ArtifactResolve endpoint expects.
const soapArtifactResolve = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <samlp:ArtifactResolve xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
      ID="%s" Version="2.0" IssueInstant="%s">
      <saml:Issuer xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion">%s</saml:Issuer>
      <samlp:Artifact>%s</samlp:Artifact>
    </samlp:ArtifactResolve>
  </soap:Body>
</soap:Envelope>`

// ResolveArtifact implements spec.md §4.5.3 step 3: a SOAP
// ArtifactResolve over mutual TLS, status-code mapping, and extraction
// of the BSN from the resolved assertion's NameID. The ArtifactResolve
// request itself is sent unsigned.
func (p *Provider) ResolveArtifact(ctx context.Context, artifact string) (string, error) {
	body := fmt.Sprintf(soapArtifactResolve, newRequestID(), time.Now().UTC().Format(time.RFC3339), p.cfg.Issuer, artifact)

	client := &http.Client{
		Timeout: p.cfg.HTTPTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{p.cfg.MutualTLSCertificate},
				RootCAs:      p.cfg.CAPool,
			},
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.ArtifactResolveURL, strings.NewReader(body))
	if err != nil {
		return "", apperr.Server("server.internal.authDigidBased.resolveArtifact", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "ArtifactResolve")

	resp, err := client.Do(req)
	if err != nil {
		return "", apperr.Server("server.internal.authDigidBased.resolveArtifact", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Server("server.internal.authDigidBased.resolveArtifact", err)
	}

	var envelope artifactResolveEnvelope
	if err := xml.Unmarshal(raw, &envelope); err != nil {
		return "", apperr.Server("server.internal.authDigidBased.resolveArtifact", err)
	}
	response := envelope.Body.ArtifactResponse.Response

	if err := p.verifySignatures(raw); err != nil {
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.invalidSignature")
	}

	switch response.Status.StatusCode.Value {
	case "urn:oasis:names:tc:SAML:2.0:status:Success":
		// continue
	case "urn:oasis:names:tc:SAML:2.0:status:AuthnFailed":
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.aborted")
	case "urn:oasis:names:tc:SAML:2.0:status:NoAuthnContext":
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.insufficientSecurityLevel")
	case "urn:oasis:names:tc:SAML:2.0:status:RequestDenied":
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.invalidSAMLArt")
	default:
		return "", apperr.Server("server.internal.authDigidBased.resolveArtifact.unexpectedStatus", fmt.Errorf("status %q", response.Status.StatusCode.Value))
	}

	assertion := response.Assertion
	if assertion.Conditions.AudienceRestriction.Audience != p.cfg.Issuer {
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.audienceMismatch")
	}
	now := time.Now().UTC()
	if now.Before(assertion.Conditions.NotBefore) || !now.Before(assertion.Conditions.NotOnOrAfter) {
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.outsideValidityWindow")
	}

	const bsnPrefix = "s00000000:"
	nameID := assertion.Subject.NameID.Value
	if !strings.HasPrefix(nameID, bsnPrefix) {
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.missingBsnPrefix")
	}
	bsn := strings.TrimPrefix(nameID, bsnPrefix)
	return fmt.Sprintf("%09s", bsn), nil
}

// verifySignatures checks every ds:Signature element in the response
// against the IdP's published certificate.
func (p *Provider) verifySignatures(raw []byte) error {
	valCtx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{p.cfg.IDPCertificate},
	})

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return fmt.Errorf("digid: parse response for signature check: %w", err)
	}
	signed := doc.FindElements("//Signature/..")
	if len(signed) == 0 {
		return fmt.Errorf("digid: response carries no Signature element")
	}
	for _, el := range signed {
		if _, err := valCtx.Validate(el); err != nil {
			return fmt.Errorf("digid: signature validation failed: %w", err)
		}
	}
	return nil
}

type artifactResolveEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		ArtifactResponse struct {
			Response struct {
				Status struct {
					StatusCode struct {
						Value string `xml:"Value,attr"`
					} `xml:"StatusCode"`
				} `xml:"Status"`
				Assertion struct {
					Conditions struct {
						NotBefore           time.Time `xml:"NotBefore,attr"`
						NotOnOrAfter        time.Time `xml:"NotOnOrAfter,attr"`
						AudienceRestriction struct {
							Audience string `xml:"Audience"`
						} `xml:"AudienceRestriction"`
					} `xml:"Conditions"`
					Subject struct {
						NameID struct {
							Value string `xml:",chardata"`
						} `xml:"NameID"`
					} `xml:"Subject"`
				} `xml:"Assertion"`
			} `xml:"Response"`
		} `xml:"ArtifactResponse"`
	} `xml:"Body"`
}

// LoginInput backs the post-resolution login step.
type LoginInput struct {
	TenantID          string
	BSN               string
	ExistingSessionID string
	Device            *authproviders.DeviceInfo
}

func (p *Provider) Login(ctx context.Context, in LoginInput) (domain.Session, session.TokenPair, error) {
	dl, err := p.logins.GetByIdentifier(ctx, in.TenantID, in.BSN)
	if err == domain.ErrNotFound {
		return domain.Session{}, session.TokenPair{}, apperr.Unauthorized("authDigidBased.login.unknownBsn")
	}
	if err != nil {
		return domain.Session{}, session.TokenPair{}, apperr.Server("server.internal.authDigidBased.login", err)
	}

	u, err := p.users.Lookup(ctx, dl.UserID)
	if err != nil {
		return domain.Session{}, session.TokenPair{}, err
	}
	if err := p.users.UpdateLastLogin(ctx, u.ID, time.Now()); err != nil {
		return domain.Session{}, session.TokenPair{}, err
	}

	return p.tail.Run(ctx, "authDigidBased", authproviders.TailInput{
		UserID: u.ID, TenantID: in.TenantID,
		Type: domain.SessionTypeUser, LoginType: domain.LoginTypeDigid, TwoStep: domain.TwoStepNone,
		ExistingSessionID: in.ExistingSessionID, Device: in.Device,
	})
}
