package retry

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

type Settings struct {
	InitialBackoff time.Duration
	Multiplier     int
	MaxBackoff     time.Duration
	// MaxAttempts of zero retries until the context is done.
	MaxAttempts int
}

func (s Settings) Verify() error {
	if s.InitialBackoff <= 0 {
		return errors.Newf("initial backoff must be > 0, got %s", s.InitialBackoff)
	}
	if s.Multiplier < 1 {
		return errors.Newf("multiplier must be >= 1, got %d", s.Multiplier)
	}
	if s.MaxBackoff > 0 && s.InitialBackoff > s.MaxBackoff {
		return errors.Newf("initial backoff (%s) must be less than max backoff (%s)", s.InitialBackoff, s.MaxBackoff)
	}
	if s.MaxAttempts < 0 {
		return errors.Newf("max attempts must be >= 0, got %d", s.MaxAttempts)
	}
	return nil
}

func DefaultSettings() Settings {
	return Settings{
		InitialBackoff: 500 * time.Millisecond,
		Multiplier:     2,
		MaxBackoff:     10 * time.Second,
		MaxAttempts:    5,
	}
}

// Backoff returns the wait before the given attempt, where attempt 1 is
// the first retry.
func (s Settings) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := s.InitialBackoff * time.Duration(math.Pow(float64(s.Multiplier), float64(attempt-1)))
	if s.MaxBackoff > 0 && d > s.MaxBackoff {
		d = s.MaxBackoff
	}
	return d
}

// Do runs fn until it succeeds, the attempts are exhausted or ctx is done.
// The last error from fn is returned.
func Do(ctx context.Context, settings Settings, logger zerolog.Logger, fn func(ctx context.Context) error) error {
	if err := settings.Verify(); err != nil {
		return err
	}
	var lastErr error
	for attempt := 0; settings.MaxAttempts == 0 || attempt < settings.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := settings.Backoff(attempt)
			logger.Debug().
				Err(lastErr).
				Int("attempt", attempt+1).
				Dur("backoff", wait).
				Msgf("retrying")
			select {
			case <-ctx.Done():
				return errors.WithSecondaryError(ctx.Err(), lastErr)
			case <-time.After(wait):
			}
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}
	return errors.Wrapf(lastErr, "giving up after %d attempts", settings.MaxAttempts)
}
