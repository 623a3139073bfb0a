package shared

import (
	"fmt"

	"golang.org/x/text/currency"
)

// Amounts are carried as int64 minor units (cents) to keep balance
// arithmetic exact. Display formatting is the caller's concern.

// ValidateCurrency checks the code against the ISO 4217 registry.
func ValidateCurrency(code string) error {
	if code == "" {
		return fmt.Errorf("%w: currency required", ErrInvalidInput)
	}
	if _, err := currency.ParseISO(code); err != nil {
		return fmt.Errorf("%w: invalid currency %q", ErrInvalidInput, code)
	}
	return nil
}

// NormalizeCurrency returns the canonical upper-case ISO code.
func NormalizeCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: invalid currency %q", ErrInvalidInput, code)
	}
	return unit.String(), nil
}
