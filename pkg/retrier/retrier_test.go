package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fast(opts ...Option) *Retrier {
	return New(append([]Option{WithInitialInterval(time.Millisecond), WithMaxInterval(2 * time.Millisecond)}, opts...)...)
}

func TestDo(t *testing.T) {
	flaky := errors.New("gateway timeout")

	cases := []struct {
		name     string
		retries  int
		failures int
		wantErr  bool
		wantCall int
	}{
		{name: "first attempt succeeds", retries: 3, failures: 0, wantCall: 1},
		{name: "recovers within budget", retries: 3, failures: 2, wantCall: 3},
		{name: "budget exhausted", retries: 2, failures: 10, wantErr: true, wantCall: 3},
		{name: "no retries", retries: 0, failures: 1, wantErr: true, wantCall: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := fast(WithMaxRetries(tc.retries)).Do(context.Background(), func(context.Context) error {
				calls++
				if calls <= tc.failures {
					return flaky
				}
				return nil
			})
			if tc.wantErr {
				assert.ErrorIs(t, err, flaky)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantCall, calls)
		})
	}
}

func TestDoStopsEarly(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := New(WithMaxRetries(5), WithInitialInterval(time.Second)).Do(ctx, func(context.Context) error {
			calls++
			cancel()
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("retryIf rejects", func(t *testing.T) {
		rejected := errors.New("bad request")
		calls := 0
		err := fast(
			WithMaxRetries(5),
			WithRetryIf(func(err error) bool { return !errors.Is(err, rejected) }),
		).Do(context.Background(), func(context.Context) error {
			calls++
			if calls == 2 {
				return rejected
			}
			return errors.New("transient")
		})
		assert.ErrorIs(t, err, rejected)
		assert.Equal(t, 2, calls)
	})

	t.Run("permanent error is unwrapped", func(t *testing.T) {
		cause := errors.New("invalid key")
		calls := 0
		err := fast(WithMaxRetries(5)).Do(context.Background(), func(context.Context) error {
			calls++
			return Permanent(cause)
		})
		assert.Same(t, cause, err)
		assert.Equal(t, 1, calls)
	})
}

func TestOnRetryAttempts(t *testing.T) {
	var seen []int
	_ = fast(
		WithMaxRetries(2),
		WithOnRetry(func(attempt int, _ error) { seen = append(seen, attempt) }),
	).Do(context.Background(), func(context.Context) error {
		return errors.New("fail")
	})
	assert.Equal(t, []int{1, 2}, seen)
}

func TestDelayBackoff(t *testing.T) {
	r := New(
		WithInitialInterval(100*time.Millisecond),
		WithMaxInterval(300*time.Millisecond),
		WithJitter(0),
	)
	assert.Equal(t, 100*time.Millisecond, r.delay(0))
	assert.Equal(t, 200*time.Millisecond, r.delay(1))
	assert.Equal(t, 300*time.Millisecond, r.delay(2))
	assert.Equal(t, 300*time.Millisecond, r.delay(10))

	jittered := New(WithInitialInterval(100*time.Millisecond), WithJitter(0.5))
	for i := 0; i < 20; i++ {
		d := jittered.delay(0)
		require.GreaterOrEqual(t, d, 50*time.Millisecond)
		require.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestDoWithData(t *testing.T) {
	calls := 0
	val, err := DoWithData(fast(WithMaxRetries(2)), context.Background(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("reset by peer")
		}
		return "success", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "success", val)

	val, err = DoWithData(fast(WithMaxRetries(1)), context.Background(), func(context.Context) (string, error) {
		return "partial", errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, "partial", val)
}
