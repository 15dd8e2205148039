package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvaluateAutoExtend(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trigger := 5 * time.Minute
	extend := 10 * time.Minute

	cases := []struct {
		name     string
		closeAt  time.Time
		trigger  time.Duration
		extend   time.Duration
		want     time.Time
		extended bool
	}{
		{
			name:     "inside window",
			closeAt:  now.Add(3 * time.Minute),
			trigger:  trigger,
			extend:   extend,
			want:     now.Add(13 * time.Minute),
			extended: true,
		},
		{
			name:     "exactly at trigger boundary",
			closeAt:  now.Add(5 * time.Minute),
			trigger:  trigger,
			extend:   extend,
			want:     now.Add(15 * time.Minute),
			extended: true,
		},
		{
			name:     "outside window",
			closeAt:  now.Add(time.Hour),
			trigger:  trigger,
			extend:   extend,
			want:     now.Add(time.Hour),
			extended: false,
		},
		{
			name:     "extension anchored to close time not now",
			closeAt:  now.Add(time.Minute),
			trigger:  trigger,
			extend:   extend,
			want:     now.Add(11 * time.Minute),
			extended: true,
		},
		{
			name:     "zero trigger disables extension",
			closeAt:  now.Add(time.Minute),
			trigger:  0,
			extend:   extend,
			want:     now.Add(time.Minute),
			extended: false,
		},
		{
			name:     "zero extension disables extension",
			closeAt:  now.Add(time.Minute),
			trigger:  trigger,
			extend:   0,
			want:     now.Add(time.Minute),
			extended: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, extended := EvaluateAutoExtend(tc.closeAt, now, tc.trigger, tc.extend)
			require.Equal(t, tc.extended, extended)
			require.True(t, tc.want.Equal(got))
		})
	}
}
