package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("parses whole and fractional rupees", func(t *testing.T) {
		m, err := Parse("10000000")
		require.NoError(t, err)
		assert.Equal(t, int64(1_000_000_000), m.Minor())

		m, err = Parse("12.5")
		require.NoError(t, err)
		assert.Equal(t, int64(1250), m.Minor())

		m, err = Parse(" 0.01 ")
		require.NoError(t, err)
		assert.Equal(t, int64(1), m.Minor())
	})

	t.Run("rejects sub-paise precision instead of rounding", func(t *testing.T) {
		_, err := Parse("1.005")
		require.ErrorIs(t, err, ErrTooPrecise)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := Parse("ten")
		require.ErrorIs(t, err, ErrInvalidAmount)

		_, err = Parse("")
		require.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("rejects amounts beyond int64 minor units", func(t *testing.T) {
		_, err := Parse("999999999999999999999")
		require.ErrorIs(t, err, ErrOutOfRange)
	})
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "9500000.00", FromMajor(9_500_000).String())
	assert.Equal(t, "0.07", FromMinor(7).String())
	assert.Equal(t, "-12.30", FromMinor(-1230).String())
}

func TestApplyRate(t *testing.T) {
	rate := decimal.RequireFromString("0.20")

	assert.Equal(t, FromMajor(1_140_000), ApplyRate(FromMajor(5_700_000), rate))

	// 0.20 × 3 paise = 0.6 paise, rounds to 1
	assert.Equal(t, FromMinor(1), ApplyRate(FromMinor(3), rate))

	// 0.20 × 2 paise = 0.4 paise, rounds to 0
	assert.Equal(t, FromMinor(0), ApplyRate(FromMinor(2), rate))

	// half rounds away from zero: 0.5 × 5 paise = 2.5 -> 3
	assert.Equal(t, FromMinor(3), ApplyRate(FromMinor(5), decimal.RequireFromString("0.5")))
}

func TestMoneyJSON(t *testing.T) {
	type payload struct {
		Amount Money `json:"amount"`
	}

	data, err := json.Marshal(payload{Amount: MustParse("1234.5")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"1234.50"}`, string(data))

	var fromString payload
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"200000"}`), &fromString))
	assert.Equal(t, FromMajor(200_000), fromString.Amount)

	var fromNumber payload
	require.NoError(t, json.Unmarshal([]byte(`{"amount":300000.25}`), &fromNumber))
	assert.Equal(t, FromMinor(30_000_025), fromNumber.Amount)

	var bad payload
	require.Error(t, json.Unmarshal([]byte(`{"amount":"1.234"}`), &bad))
}

func TestSum(t *testing.T) {
	assert.Equal(t, FromMinor(6), Sum(FromMinor(1), FromMinor(2), FromMinor(3)))
	assert.Equal(t, Zero, Sum())
}
