package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		amount int64
		want   string
	}{
		{0, "0"},
		{999, "999"},
		{1_000, "1,000"},
		{100_000, "100,000"},
		{1_500_000, "1,500,000"},
		{-120_000, "-120,000"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, FormatPrice(tc.amount))
	}
}
