package shared

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCheckAmount(t *testing.T) {
	for _, tc := range []struct {
		in string
		ok bool
	}{
		{"0", true},
		{"150", true},
		{"0.35", true},
		{"1.500", true},
		{"0.335", false},
		{"0.004", false},
		{"-1", false},
	} {
		err := CheckAmount("test", "amount", decimal.RequireFromString(tc.in))
		if tc.ok {
			require.NoError(t, err, tc.in)
			continue
		}
		require.ErrorIs(t, err, ErrValidation, tc.in)
	}
}

func TestOutstandingAtCentScale(t *testing.T) {
	cost := LineTotal(decimal.RequireFromString("0.35"), 3)
	require.True(t, cost.Equal(decimal.RequireFromString("1.05")))
	require.True(t, HasCents(cost))
	require.True(t, Outstanding(cost, decimal.RequireFromString("0.05")).Equal(decimal.RequireFromString("1")))
	require.True(t, Outstanding(decimal.RequireFromString("2"), decimal.RequireFromString("5")).IsZero())
}
