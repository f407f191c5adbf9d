package oj

import (
	"context"
	"strconv"
	"sync/atomic"

	"vjudge-orchestrator/internal/vjudge/siteclient"
)

// demoClient is a self-contained, in-process "local" OJ: it always accepts
// a submission and reports Accepted on the first status poll. It exists for
// local development and smoke-testing a deployment without any real OJ
// credentials, the Go analogue of the original project's bundled test
// judge.
type demoClient struct {
	username string
	nextRun  atomic.Int64
}

func (c *demoClient) Name() string { return "local" }

func (c *demoClient) UserID() (string, error) {
	if c.username == "" {
		return "", siteclient.ErrLoginRequired
	}
	return c.username, nil
}

func (c *demoClient) Login(ctx context.Context, username, password string) error {
	c.username = username
	return nil
}

func (c *demoClient) UpdateCookies(ctx context.Context) error { return nil }

func (c *demoClient) GetProblem(ctx context.Context, problemID string) (siteclient.ProblemAttrs, error) {
	return siteclient.ProblemAttrs{
		Title:       "Demo Problem " + problemID,
		Description: "Local smoke-test problem, no real statement.",
		TimeLimitMS: 1000,
		MemLimitKB:  65536,
	}, nil
}

func (c *demoClient) SubmitProblem(ctx context.Context, problemID, language, sourceCode string) (string, error) {
	return strconv.FormatInt(c.nextRun.Add(1), 10), nil
}

func (c *demoClient) GetSubmitStatus(ctx context.Context, runID, userID, problemID string) (siteclient.Status, error) {
	return siteclient.Status{Verdict: "Accepted", ExeTime: 15, ExeMem: 256}, nil
}

var _ siteclient.Client = (*demoClient)(nil)

// RegisterLocalDemo installs the "local" demo OJ into r.
func RegisterLocalDemo(r *Registry) {
	r.Register("local",
		func(ctx context.Context) (siteclient.Client, error) {
			return &demoClient{}, nil
		},
		func(ctx context.Context, username, password string) (siteclient.Client, error) {
			return &demoClient{username: username}, nil
		},
	)
}
