package domain

import (
	"context"
	"time"
)

// TotpSettings is the second-factor enrollment for one user (spec.md
// §4.5.5). Secret is stored as-is by the store adapter; it is not
// encrypted at rest.
type TotpSettings struct {
	ID             string
	UserID         string
	Secret         string
	Confirmed      bool
	RecoveryCodes  []string
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
}

type TotpRepository interface {
	GetByUserID(ctx context.Context, userID string) (TotpSettings, error)
	Create(ctx context.Context, t TotpSettings) (TotpSettings, error)
	Confirm(ctx context.Context, id string, at time.Time) error
	ReplaceRecoveryCodes(ctx context.Context, id string, codes []string) error
	ConsumeRecoveryCode(ctx context.Context, userID, code string) (bool, error)
	Delete(ctx context.Context, userID string) error
}
