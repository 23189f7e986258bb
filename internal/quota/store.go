package quota

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrQuotaExceeded is returned by Increment when the daily cap is already used up.
	ErrQuotaExceeded = errors.New("daily free generation limit reached")

	// ErrTransactionFailed means the increment could not be applied. It must
	// reach the user, since swallowing it would let the cap be exceeded on retry.
	ErrTransactionFailed = errors.New("failed to update quota, please try again")
)

// Store persists quota records. Update must be an atomic read-modify-write:
// concurrent updates of the same user are serialized and never lost.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (Record, bool, error)
	Put(ctx context.Context, userID uuid.UUID, rec Record) error
	Update(ctx context.Context, userID uuid.UUID, fn func(rec *Record) error) (Record, error)
}

// CredentialChecker reports whether a user has a usable API key of their own.
type CredentialChecker interface {
	HasCredential(ctx context.Context, userID uuid.UUID) bool
}
