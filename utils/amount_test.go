package utils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmountWithDecimals(t *testing.T) {
	cases := map[string]int64{
		"0.01": 10000,
		"0.15": 150000,
		"0.50": 500000,
		"1":    1000000,
	}
	for display, want := range cases {
		got, err := ParseAmountWithDecimals(display, 6)
		require.NoError(t, err, display)
		assert.Equal(t, want, got.Int64(), display)
	}
}

func TestParseAmountWithDecimalsRejectsExtraPrecision(t *testing.T) {
	_, err := ParseAmountWithDecimals("0.0000001", 6)
	assert.Error(t, err)

	_, err = ParseAmountWithDecimals("-1", 6)
	assert.Error(t, err)

	_, err = ParseAmountWithDecimals("", 6)
	assert.Error(t, err)
}

func TestFormatAmountFromBigInt(t *testing.T) {
	assert.Equal(t, "0.5", FormatAmountFromBigInt(big.NewInt(500000), 6))
	assert.Equal(t, "0.01", FormatAmountFromBigInt(big.NewInt(10000), 6))
}

func TestValidateAddress(t *testing.T) {
	require.NoError(t, ValidateAddress("0x5425890298aed601595a70AB815c96711a31Bc65"))
	assert.Error(t, ValidateAddress(""))
	assert.Error(t, ValidateAddress("5425890298aed601595a70AB815c96711a31Bc65"))
	assert.Error(t, ValidateAddress("0x1234"))
}

func TestValidateBigInt(t *testing.T) {
	v, err := ValidateBigInt("150000")
	require.NoError(t, err)
	assert.Equal(t, int64(150000), v.Int64())

	_, err = ValidateBigInt("1.5")
	assert.Error(t, err)
}
