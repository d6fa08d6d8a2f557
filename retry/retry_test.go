package retry

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestVerifySettings(t *testing.T) {
	for _, tc := range []struct {
		desc          string
		settings      Settings
		expectedError string
	}{
		{
			desc:     "default settings",
			settings: DefaultSettings(),
		},
		{
			desc:          "initial backoff unset",
			settings:      Settings{},
			expectedError: "initial backoff must be > 0, got 0s",
		},
		{
			desc:          "multiplier bad",
			settings:      Settings{InitialBackoff: time.Second},
			expectedError: "multiplier must be >= 1, got 0",
		},
		{
			desc:          "max backoff bad",
			settings:      Settings{InitialBackoff: time.Second, Multiplier: 5, MaxBackoff: time.Millisecond},
			expectedError: "initial backoff (1s) must be less than max backoff (1ms)",
		},
		{
			desc:          "negative attempts",
			settings:      Settings{InitialBackoff: time.Second, Multiplier: 1, MaxAttempts: -1},
			expectedError: "max attempts must be >= 0, got -1",
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.settings.Verify()
			if tc.expectedError != "" {
				require.EqualError(t, err, tc.expectedError)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	s := Settings{InitialBackoff: time.Second, Multiplier: 2, MaxBackoff: 5 * time.Second}
	var got []time.Duration
	for attempt := 0; attempt <= 4; attempt++ {
		got = append(got, s.Backoff(attempt))
	}
	require.Equal(
		t,
		[]time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second},
		got,
	)
}

func TestDo(t *testing.T) {
	settings := Settings{InitialBackoff: time.Millisecond, Multiplier: 1, MaxAttempts: 3}
	ctx := context.Background()

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := Do(ctx, settings, zerolog.Nop(), func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.Newf("attempt %d failed", calls)
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := Do(ctx, settings, zerolog.Nop(), func(context.Context) error {
			calls++
			return errors.Newf("attempt %d failed", calls)
		})
		require.EqualError(t, err, "giving up after 3 attempts: attempt 3 failed")
		require.Equal(t, 3, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := Do(cancelled, Settings{InitialBackoff: time.Hour, Multiplier: 1}, zerolog.Nop(), func(context.Context) error {
			return errors.New("unreachable database")
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}
