// Package authproviders implements the shared tail every concrete
// provider (password, anonymous, digid, keycloak) runs after its own
// credential check succeeds (spec.md §4.5): invalidate any session the
// caller is replacing, bind the device, and issue the new token pair.
package authproviders

import (
	"context"
	"time"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/session"
)

// DeviceInfo is the client-supplied device object spec.md §4.5.6 requires
// when the deployment has RequireDeviceInfo set.
type DeviceInfo struct {
	Identity   string
	Platform   string // "apple" | "android" | ""
	AppVersion string
}

func (d *DeviceInfo) isMobile() bool {
	return d != nil && (d.Platform == "apple" || d.Platform == "android")
}

// Config is the subset of Auth config the tail needs; kept narrow so
// provider packages don't import internal/config directly.
type Config struct {
	RequireDeviceInfo bool
	MaxMobileSessions int
}

// TailInput is what a provider hands the tail once its own check
// succeeded.
type TailInput struct {
	UserID             string
	TenantID           string
	Type               domain.SessionType
	LoginType          domain.LoginType
	TwoStep            domain.TwoStepType
	ExistingSessionID  string // "" if no prior session to replace
	Device             *DeviceInfo
	ImpersonatorUserID *string
	RefreshTTLOverride *time.Duration
}

// Tail wires the session store and device repository the way every
// provider's login path needs them.
type Tail struct {
	Store   *session.Store
	Devices domain.DeviceRepository
	Cfg     Config
}

func New(store *session.Store, devices domain.DeviceRepository, cfg Config) *Tail {
	return &Tail{Store: store, Devices: devices, Cfg: cfg}
}

// Run executes the documented tail: invalidate, bind device, create,
// return the pair.
func (t *Tail) Run(ctx context.Context, eventKeyPrefix string, in TailInput) (domain.Session, session.TokenPair, error) {
	if in.Device == nil && t.Cfg.RequireDeviceInfo {
		return domain.Session{}, session.TokenPair{}, apperr.Validation(eventKeyPrefix + ".deviceInfoRequired")
	}

	if in.ExistingSessionID != "" {
		if err := t.Store.Invalidate(ctx, in.ExistingSessionID); err != nil {
			return domain.Session{}, session.TokenPair{}, apperr.Server("server.internal.authProviders.invalidateExisting", err)
		}
	}

	var deviceID *string
	if in.Device != nil {
		dev, err := t.Devices.Upsert(ctx, domain.Device{
			UserID:     in.UserID,
			Identity:   in.Device.Identity,
			Platform:   in.Device.Platform,
			AppVersion: in.Device.AppVersion,
		})
		if err != nil {
			return domain.Session{}, session.TokenPair{}, apperr.Server("server.internal.authProviders.deviceUpsert", err)
		}
		deviceID = &dev.ID

		if in.Device.isMobile() && t.Cfg.MaxMobileSessions > 0 {
			n, err := t.Devices.CountMobileSessions(ctx, in.UserID)
			if err != nil {
				return domain.Session{}, session.TokenPair{}, apperr.Server("server.internal.authProviders.countMobileSessions", err)
			}
			if n >= t.Cfg.MaxMobileSessions {
				return domain.Session{}, session.TokenPair{}, apperr.Forbidden(eventKeyPrefix + ".maxMobileSessionsExceeded")
			}
		}
	}

	sess, pair, err := t.Store.Create(ctx, in.UserID, in.TenantID, in.Type, in.LoginType, in.TwoStep, deviceID, in.ImpersonatorUserID, in.RefreshTTLOverride)
	if err != nil {
		return domain.Session{}, session.TokenPair{}, err
	}
	return sess, pair, nil
}
