package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry(t *testing.T) {
	errFlaky := errors.New("flaky")
	cases := []struct {
		name      string
		failures  int
		retries   int
		wantErr   error
		wantCalls int
	}{
		{"first try", 0, 3, nil, 1},
		{"recovers", 2, 3, nil, 3},
		{"gives up", 5, 2, errFlaky, 3},
		{"negative retries", 1, -1, errFlaky, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := withRetry(context.Background(), tc.retries, time.Millisecond, func(context.Context) error {
				calls++
				if calls <= tc.failures {
					return errFlaky
				}
				return nil
			})
			assert.ErrorIs(t, err, tc.wantErr)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantCalls, calls)
		})
	}
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, 10, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
