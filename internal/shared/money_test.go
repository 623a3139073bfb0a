package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCurrency(t *testing.T) {
	got, err := NormalizeCurrency("usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", got)

	got, err = NormalizeCurrency("EUR")
	require.NoError(t, err)
	assert.Equal(t, "EUR", got)

	_, err = NormalizeCurrency("")
	require.Error(t, err)

	_, err = NormalizeCurrency("DOLLARS")
	require.Error(t, err)
}

func TestValidateCurrency(t *testing.T) {
	require.NoError(t, ValidateCurrency("IDR"))
	require.Error(t, ValidateCurrency(""))
	require.Error(t, ValidateCurrency("ZZZZ"))
}
