package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/blogsync/internal/config"
	"git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

func TestDelay(t *testing.T) {
	p := Policy{Mode: config.RetryBackoffExponential, Initial: 100 * time.Millisecond, Max: time.Second, MaxRetries: 5}
	require.Equal(t, time.Duration(0), p.Delay(0))
	require.Equal(t, 100*time.Millisecond, p.Delay(1))
	require.Equal(t, 200*time.Millisecond, p.Delay(2))
	require.Equal(t, 400*time.Millisecond, p.Delay(3))
	require.Equal(t, time.Second, p.Delay(5))

	p.Mode = config.RetryBackoffLinear
	require.Equal(t, 300*time.Millisecond, p.Delay(3))

	p.Mode = config.RetryBackoffFixed
	require.Equal(t, 100*time.Millisecond, p.Delay(4))
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.ForgeConfig{
		MaxRetries:        3,
		RetryBackoff:      "LINEAR",
		RetryInitialDelay: "2s",
		RetryMaxDelay:     "1s",
	})
	require.Equal(t, config.RetryBackoffLinear, p.Mode)
	require.Equal(t, 3, p.MaxRetries)
	require.Equal(t, time.Second, p.Initial)
	require.NoError(t, p.Validate())

	p = FromConfig(config.ForgeConfig{RetryInitialDelay: "soon"})
	require.Equal(t, DefaultPolicy().Initial, p.Initial)
}

func TestDo_RetriesOnlyRetryableErrors(t *testing.T) {
	p := Policy{Mode: config.RetryBackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 2}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.NetworkError("connection reset").Build()
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.AuthError("forbidden").Build()
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)

	calls = 0
	err = p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.NetworkError("still down").Build()
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_ContextCanceled(t *testing.T) {
	p := Policy{Mode: config.RetryBackoffFixed, Initial: time.Hour, Max: time.Hour, MaxRetries: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, func(context.Context) error {
		return errors.NetworkError("down").Build()
	})
	require.ErrorIs(t, err, context.Canceled)
}
