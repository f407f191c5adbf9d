package statuscrawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vjudge-orchestrator/internal/vjudge/model"
	"vjudge-orchestrator/internal/vjudge/siteclient"
	"vjudge-orchestrator/internal/vjudge/store"
)

func newBeingJudgedSubmission(t *testing.T, subs store.SubmissionStore) int64 {
	t.Helper()
	id, err := subs.Insert(context.Background(), &model.Submission{OJName: "hdu", ProblemID: "1001"})
	require.NoError(t, err)
	require.NoError(t, subs.SetSubmitted(context.Background(), id, "run-1", "alice"))
	return id
}

func TestCrawlerPollsUntilTerminalVerdict(t *testing.T) {
	subs := store.NewMemorySubmissionStore()
	id := newBeingJudgedSubmission(t, subs)

	client := siteclient.NewMockClient("hdu", "alice")
	// A single terminal result keeps this test from paying the real
	// back-off sleep between polls (attempt starts at 0, so the first
	// poll fires immediately).
	client.StatusResults = []siteclient.MockStatusResult{
		{Status: siteclient.Status{Verdict: "Accepted", ExeTime: 50, ExeMem: 2048}},
	}

	c := New(client, "hdu", subs)
	c.Start()
	require.NoError(t, c.AddTask(id))

	require.Eventually(t, func() bool {
		got, _ := subs.Get(context.Background(), id)
		return got.Verdict == model.VerdictAccepted
	}, time.Second, 5*time.Millisecond)

	got, _ := subs.Get(context.Background(), id)
	require.NotNil(t, got.ExeTime)
	assert.Equal(t, 50, *got.ExeTime)

	require.NoError(t, c.Stop())
}

func TestCrawlerRetriesTransientStatusBeforeTerminal(t *testing.T) {
	subs := store.NewMemorySubmissionStore()
	id := newBeingJudgedSubmission(t, subs)

	client := siteclient.NewMockClient("hdu", "alice")
	client.StatusResults = []siteclient.MockStatusResult{
		{Status: siteclient.Status{Verdict: "Being Judged"}},
		{Status: siteclient.Status{Verdict: "Accepted"}},
	}

	c := New(client, "hdu", subs)
	c.Start()
	require.NoError(t, c.AddTask(id))

	// The second poll pays a real 1s back-off sleep (attempt=1), so this
	// test is given a generous window rather than a tight one.
	require.Eventually(t, func() bool {
		got, _ := subs.Get(context.Background(), id)
		return got.Verdict == model.VerdictAccepted
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, client.StatusCallCount())
	require.NoError(t, c.Stop())
}

func TestCrawlerConnectionErrorCommitsJudgeFailed(t *testing.T) {
	subs := store.NewMemorySubmissionStore()
	id := newBeingJudgedSubmission(t, subs)

	client := siteclient.NewMockClient("hdu", "alice")
	client.StatusResults = []siteclient.MockStatusResult{{Err: siteclient.ErrConnection}}

	c := New(client, "hdu", subs)
	c.Start()
	require.NoError(t, c.AddTask(id))

	require.Eventually(t, func() bool {
		got, _ := subs.Get(context.Background(), id)
		return got.Verdict == model.VerdictJudgeFailed
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Stop())
}

func TestCrawlerLoginExpiredDoesNotCountAgainstBudget(t *testing.T) {
	subs := store.NewMemorySubmissionStore()
	id := newBeingJudgedSubmission(t, subs)

	client := siteclient.NewMockClient("hdu", "alice")
	client.StatusResults = []siteclient.MockStatusResult{
		{Err: siteclient.ErrLoginExpired},
		{Err: siteclient.ErrLoginExpired},
		{Status: siteclient.Status{Verdict: "Accepted"}},
	}

	c := New(client, "hdu", subs)
	c.Start()
	require.NoError(t, c.AddTask(id))

	require.Eventually(t, func() bool {
		got, _ := subs.Get(context.Background(), id)
		return got.Verdict == model.VerdictAccepted
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Stop())
}

func TestCrawlerStopTwiceIsAnError(t *testing.T) {
	subs := store.NewMemorySubmissionStore()
	client := siteclient.NewMockClient("hdu", "alice")
	c := New(client, "hdu", subs)
	c.Start()

	require.NoError(t, c.Stop())
	assert.ErrorIs(t, c.Stop(), errAlreadyStopped)
}

func TestCrawlerAddTaskBeforeStartFails(t *testing.T) {
	subs := store.NewMemorySubmissionStore()
	client := siteclient.NewMockClient("hdu", "alice")
	c := New(client, "hdu", subs)

	assert.ErrorIs(t, c.AddTask(1), errNotStarted)
}
