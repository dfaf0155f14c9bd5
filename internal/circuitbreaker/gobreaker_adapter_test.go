package circuitbreaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"places-cache/internal/common/errors"
	"places-cache/internal/common/logging"
)

func testConfig(maxFailures int, timeout time.Duration) Config {
	return Config{
		MaxFailures:           maxFailures,
		Timeout:               timeout,
		MaxConcurrentRequests: 1,
		Interval:              time.Minute,
	}
}

func TestGoBreakerAdapter(t *testing.T) {
	logger := logging.GetGlobalLogger()

	t.Run("basic operation", func(t *testing.T) {
		cb := NewGoBreaker("test-basic", testConfig(2, 100*time.Millisecond), logger)

		assert.Equal(t, StateClosed, cb.State())

		err := cb.Execute(context.Background(), func() error {
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("circuit opens after failures", func(t *testing.T) {
		cb := NewGoBreaker("test-failures", testConfig(3, 100*time.Millisecond), logger)

		for i := 0; i < 3; i++ {
			err := cb.Execute(context.Background(), func() error {
				return fmt.Errorf("failure %d", i)
			})
			assert.Error(t, err)
		}

		assert.Equal(t, StateOpen, cb.State())
		assert.Equal(t, "circuitbreaker(test-failures, open)", cb.String())

		err := cb.Execute(context.Background(), func() error {
			t.Fatal("This should not be called")
			return nil
		})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))

		var appErr *errors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "CIRCUIT_OPEN", appErr.Code)
	})

	t.Run("circuit transitions to half-open", func(t *testing.T) {
		cb := NewGoBreaker("test-half-open", testConfig(2, 50*time.Millisecond), logger)

		for i := 0; i < 2; i++ {
			_ = cb.Execute(context.Background(), func() error {
				return fmt.Errorf("failure")
			})
		}
		assert.Equal(t, StateOpen, cb.State())

		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, StateHalfOpen, cb.State())

		err := cb.Execute(context.Background(), func() error {
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("client errors don't trip breaker", func(t *testing.T) {
		cb := NewGoBreaker("test-validation", testConfig(2, 100*time.Millisecond), logger)

		for i := 0; i < 5; i++ {
			err := cb.Execute(context.Background(), func() error {
				return errors.ValidationError("query is required")
			})
			assert.Error(t, err)

			err = cb.Execute(context.Background(), func() error {
				return fmt.Errorf("wrapped: %w", errors.NotFoundError("place"))
			})
			assert.Error(t, err)
		}
		assert.Equal(t, StateClosed, cb.State())

		for i := 0; i < 2; i++ {
			err := cb.Execute(context.Background(), func() error {
				return errors.UpstreamError("google places", fmt.Errorf("503"))
			})
			assert.Error(t, err)
		}
		assert.Equal(t, StateOpen, cb.State())
	})

	t.Run("cancelled context skips the call", func(t *testing.T) {
		cb := NewGoBreaker("test-cancel", testConfig(1, time.Second), logger)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := cb.Execute(ctx, func() error {
			t.Fatal("This should not be called")
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("stats tracking", func(t *testing.T) {
		cb := NewGoBreaker("test-stats", testConfig(10, 100*time.Millisecond), logger)

		for i := 0; i < 3; i++ {
			_ = cb.Execute(context.Background(), func() error { return nil })
		}
		for i := 0; i < 2; i++ {
			_ = cb.Execute(context.Background(), func() error { return fmt.Errorf("failure") })
		}

		stats := cb.Stats()
		assert.Equal(t, "test-stats", stats.Name)
		assert.Equal(t, "closed", stats.State)
		assert.Equal(t, 3, stats.Successes)
		assert.Equal(t, 2, stats.Failures)
	})

	t.Run("invalid config falls back to defaults", func(t *testing.T) {
		cb := NewGoBreaker("test-invalid", Config{}, nil)
		assert.Equal(t, DefaultConfig(), cb.config)
	})
}

func TestStats_ReportsOpenState(t *testing.T) {
	cb := NewGoBreaker("test-open-stats", testConfig(1, time.Hour), nil)
	_ = cb.Execute(context.Background(), func() error { return fmt.Errorf("failure") })

	stats := cb.Stats()
	assert.Equal(t, "open", stats.State)
	// gobreaker starts a new generation on every transition
	assert.Zero(t, stats.Failures)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, GoogleMapsConfig.Validate())

	bad := DefaultConfig()
	bad.MaxFailures = 0
	assert.ErrorContains(t, bad.Validate(), "MaxFailures")

	bad = DefaultConfig()
	bad.Interval = -time.Second
	assert.ErrorContains(t, bad.Validate(), "Interval")
}
