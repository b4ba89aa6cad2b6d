// Package domain holds the entity types and repository interfaces shared
// by every core component — independent of the underlying store. Concrete
// implementations live in internal/store/postgres.
package domain

import "errors"

// Sentinel errors returned by repository implementations. Callers map
// these to apperr kinds; repositories never import apperr themselves so
// that the storage layer has no HTTP-shaped dependency.
var (
	ErrNotFound = errors.New("domain: not found")
	ErrConflict = errors.New("domain: conflict")
	ErrNoTx     = errors.New("domain: operation requires an enclosing transaction")
)
