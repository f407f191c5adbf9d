package siteclient

import (
	"context"
	"sync"
)

// MockClient is a scriptable fake used by the vjudge test suite to exercise
// Submitter/StatusCrawler/ProblemCrawler without a live OJ, mirroring the
// five literal end-to-end scenarios of spec.md §8.
type MockClient struct {
	mu sync.Mutex

	name     string
	username string

	// SubmitResults is popped in order on each SubmitProblem call; each
	// entry is either a run id or an error.
	SubmitResults []MockSubmitResult
	submitCalls   int

	// StatusResults is popped in order on each GetSubmitStatus call.
	StatusResults []MockStatusResult
	statusCalls   int

	// ProblemResult is returned by GetProblem.
	ProblemResult ProblemAttrs
	ProblemErr    error

	// UpdateCookiesErr, if set, is returned by UpdateCookies.
	UpdateCookiesErr error
}

// MockSubmitResult is one scripted outcome for SubmitProblem.
type MockSubmitResult struct {
	RunID string
	Err   error
}

// MockStatusResult is one scripted outcome for GetSubmitStatus.
type MockStatusResult struct {
	Status Status
	Err    error
}

// NewMockClient builds a MockClient for the given OJ name and username.
// An empty username marks an anonymous (ProblemCrawler-style) client.
func NewMockClient(name, username string) *MockClient {
	return &MockClient{name: name, username: username}
}

func (c *MockClient) Name() string { return c.name }

func (c *MockClient) UserID() (string, error) {
	if c.username == "" {
		return "", ErrLoginRequired
	}
	return c.username, nil
}

func (c *MockClient) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	return nil
}

func (c *MockClient) UpdateCookies(ctx context.Context) error {
	return c.UpdateCookiesErr
}

func (c *MockClient) GetProblem(ctx context.Context, problemID string) (ProblemAttrs, error) {
	return c.ProblemResult, c.ProblemErr
}

func (c *MockClient) SubmitProblem(ctx context.Context, problemID, language, sourceCode string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitCalls >= len(c.SubmitResults) {
		return "", ErrSubmitRejected
	}
	r := c.SubmitResults[c.submitCalls]
	c.submitCalls++
	return r.RunID, r.Err
}

func (c *MockClient) GetSubmitStatus(ctx context.Context, runID, userID, problemID string) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusCalls >= len(c.StatusResults) {
		// Exhausted script: keep reporting the transient state so tests
		// can assert on attempt-budget exhaustion deterministically.
		return Status{Verdict: "Being Judged"}, nil
	}
	r := c.StatusResults[c.statusCalls]
	c.statusCalls++
	return r.Status, r.Err
}

// SubmitCallCount returns how many times SubmitProblem was invoked.
func (c *MockClient) SubmitCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitCalls
}

// StatusCallCount returns how many times GetSubmitStatus was invoked.
func (c *MockClient) StatusCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls
}

var _ Client = (*MockClient)(nil)
