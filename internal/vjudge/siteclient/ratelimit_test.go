package siteclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/time/rate"
)

func TestRateLimitedAllowsBurstWithoutDelay(t *testing.T) {
	inner := NewMockClient("hdu", "alice")
	inner.SubmitResults = []MockSubmitResult{
		{RunID: "1"}, {RunID: "2"}, {RunID: "3"},
	}
	c := NewRateLimited(inner, rate.Limit(1000), 3)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.SubmitProblem(context.Background(), "1001", "cpp", "x")
		require.NoError(t, err)
	}
	// All 3 calls fit inside the burst, so this should return near-instantly.
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestRateLimitedRespectsContextCancellation(t *testing.T) {
	inner := NewMockClient("hdu", "alice")
	inner.SubmitResults = []MockSubmitResult{{RunID: "1"}}
	// Burst of 1, very slow refill: the second call must block on Wait and
	// observe cancellation rather than proceed.
	c := NewRateLimited(inner, rate.Limit(0.001), 1)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.SubmitProblem(ctx, "1001", "cpp", "x")
	require.NoError(t, err)

	cancel()
	_, err = c.SubmitProblem(ctx, "1001", "cpp", "x")
	assert.ErrorIs(t, err, context.Canceled)
}

var _ Client = (*RateLimited)(nil)
