package accounts

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-bank/meridian-bank/internal/shared"
)

// Account is a single-currency balance holder. The balance never goes
// negative at any committed state, and version increases by exactly one
// per successful mutation; it is the optimistic-concurrency token.
type Account struct {
	ID            uuid.UUID
	OwnerID       uuid.UUID
	AccountNumber string
	AccountTypeID int64
	Currency      string
	Balance       int64
	Version       int64
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateInput describes a new account. AccountNumber is optional; when
// empty a 12-digit number is generated.
type CreateInput struct {
	OwnerID       uuid.UUID
	AccountTypeID int64
	Currency      string
	AccountNumber string
}

// Validate checks the input before touching the store.
func (in *CreateInput) Validate() error {
	if in.OwnerID == uuid.Nil {
		return fmt.Errorf("accounts: %w: owner id required", shared.ErrInvalidInput)
	}
	if in.AccountTypeID <= 0 {
		return fmt.Errorf("accounts: %w: account type required", shared.ErrInvalidInput)
	}
	normalized, err := shared.NormalizeCurrency(in.Currency)
	if err != nil {
		return fmt.Errorf("accounts: %w", err)
	}
	in.Currency = normalized
	if in.AccountNumber != "" {
		if err := validateAccountNumber(in.AccountNumber); err != nil {
			return err
		}
	}
	return nil
}

func validateAccountNumber(number string) error {
	if len(number) != accountNumberDigits {
		return fmt.Errorf("accounts: %w: account number must be %d digits", shared.ErrInvalidInput, accountNumberDigits)
	}
	if strings.Trim(number, "0123456789") != "" {
		return fmt.Errorf("accounts: %w: account number must be numeric", shared.ErrInvalidInput)
	}
	return nil
}

const accountNumberDigits = 12

// GenerateAccountNumber returns a random 12-digit numeric account number.
func GenerateAccountNumber() (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(accountNumberDigits), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("accounts: generate number: %w", err)
	}
	return fmt.Sprintf("%0*d", accountNumberDigits, n), nil
}
