package wallet

import "github.com/pkg/errors"

// Failure conditions a caller is expected to branch on. They are returned
// wrapped; test with errors.Is or errors.Cause.
var (
	// ErrInvalidCredentials is returned by Login for an unknown user or a
	// wrong password. The two causes are intentionally indistinguishable so
	// usernames cannot be enumerated.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionNotFound is returned for an unknown, expired or logged out
	// session token.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInsufficientFunds is returned when no subset of unspent outputs
	// covers amount plus fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned for a zero send amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidSlate is returned for a structurally malformed, replayed or
	// cryptographically inconsistent slate.
	ErrInvalidSlate = errors.New("invalid slate")

	// ErrDuplicateWallet is returned when initializing a wallet for a
	// username that already has one.
	ErrDuplicateWallet = errors.New("wallet already exists")

	// ErrNotFound is returned by the Database for a missing record.
	ErrNotFound = errors.New("not found")
)
