package pending

import (
	"errors"
	"fmt"
	"time"

	"authbot/internal/address"
	"authbot/internal/identity"
	"authbot/pkg/oauth"
)

var (
	// ErrNotFound means no attempt is waiting for the address, or the
	// presented code was already used.
	ErrNotFound = errors.New("pending: no sign-in attempt waiting")

	// ErrExpired means the attempt lived past its TTL or was superseded by a
	// newer attempt for the same address.
	ErrExpired = errors.New("pending: sign-in attempt expired")

	// ErrInvalidCode means the code did not match. The attempt stays Issued
	// until it has seen the maximum number of failures.
	ErrInvalidCode = errors.New("pending: invalid magic code")

	// ErrTooManyFailures means the code did not match and the attempt has
	// been revoked because it reached its failure limit.
	ErrTooManyFailures = errors.New("pending: too many invalid codes, attempt revoked")

	// ErrCodeSpace is returned when no unused magic code could be generated.
	ErrCodeSpace = errors.New("pending: could not generate a unique magic code")
)

// InvalidCodeError is returned for a wrong code while the attempt is still
// live. It matches ErrInvalidCode with errors.Is.
type InvalidCodeError struct {
	// Remaining is how many more wrong codes the attempt tolerates.
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("%s (%d attempts left)", ErrInvalidCode, e.Remaining)
}

func (e *InvalidCodeError) Is(target error) bool {
	return target == ErrInvalidCode
}

// Status is the lifecycle state of an Attempt.
type Status string

const (
	StatusIssued   Status = "Issued"
	StatusConsumed Status = "Consumed"
	StatusExpired  Status = "Expired"
)

// Attempt is an issued but not yet confirmed correlation between a browser
// sign-in and a conversation.
type Attempt struct {
	ID        string
	Address   address.Address
	MagicCode string
	Profile   identity.Profile
	Token     *oauth.Token
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    Status

	// Failures counts wrong codes presented while the attempt was current.
	Failures int
}

// clone copies the attempt so callers never share memory with the store.
func (a *Attempt) clone() *Attempt {
	c := *a
	c.Token = a.Token.Clone()
	return &c
}

// expiredAt reports whether the attempt is past its lifetime. The boundary
// is exclusive: an attempt checked at exactly ExpiresAt is expired.
func (a *Attempt) expiredAt(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}
