package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict indicates an optimistic concurrency check failed.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInsufficientFunds indicates a debit would drive the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDuplicateReference indicates the reference code was already submitted.
	ErrDuplicateReference = errors.New("reference code already exists")
	// ErrDuplicateAccountNumber indicates the account number is taken.
	ErrDuplicateAccountNumber = errors.New("account number already exists")
	// ErrInvalidTransition indicates a transaction state change outside the allowed table.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrAccountInactive indicates a deactivated account was addressed.
	ErrAccountInactive = errors.New("account is inactive")
	// ErrSameAccount occurs when a transfer names the same account twice.
	ErrSameAccount = errors.New("source and destination accounts are identical")
	// ErrCurrencyMismatch occurs when transfer currency differs from the accounts.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrStoreUnavailable indicates a transient store failure survived retries.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidInput indicates a request that fails structural validation.
	ErrInvalidInput = errors.New("invalid input")
)
