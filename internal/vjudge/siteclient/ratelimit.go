package siteclient

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Client with a per-account token bucket, so a borrowed
// account never hammers the remote OJ faster than it tolerates regardless
// of how many submissions or polls queue up behind it locally.
type RateLimited struct {
	Client
	limiter *rate.Limiter
}

// NewRateLimited wraps client with a limiter allowing r requests/second with
// burst b, applied uniformly across SubmitProblem/GetSubmitStatus/GetProblem.
func NewRateLimited(client Client, r rate.Limit, b int) *RateLimited {
	return &RateLimited{Client: client, limiter: rate.NewLimiter(r, b)}
}

func (c *RateLimited) SubmitProblem(ctx context.Context, problemID, language, sourceCode string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return c.Client.SubmitProblem(ctx, problemID, language, sourceCode)
}

func (c *RateLimited) GetSubmitStatus(ctx context.Context, runID, userID, problemID string) (Status, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Status{}, err
	}
	return c.Client.GetSubmitStatus(ctx, runID, userID, problemID)
}

func (c *RateLimited) GetProblem(ctx context.Context, problemID string) (ProblemAttrs, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ProblemAttrs{}, err
	}
	return c.Client.GetProblem(ctx, problemID)
}

var _ Client = (*RateLimited)(nil)
