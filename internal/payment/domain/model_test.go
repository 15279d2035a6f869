package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestValidAmount(t *testing.T) {
	cases := []struct {
		amount string
		want   bool
	}{
		{"0", false},
		{"-1", false},
		{"0.01", true},
		{"999999999999.99", true},
		{"1000000000000", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ValidAmount(decimal.RequireFromString(tc.amount)), tc.amount)
	}
}
