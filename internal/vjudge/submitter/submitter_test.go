package submitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vjudge-orchestrator/internal/vjudge/model"
	"vjudge-orchestrator/internal/vjudge/queue"
	"vjudge-orchestrator/internal/vjudge/siteclient"
	"vjudge-orchestrator/internal/vjudge/store"
)

// fakeSink records AddTask/Stop calls made by Submitter, standing in for a
// real StatusCrawler.
type fakeSink struct {
	added   []int64
	addErr  error
	stopped bool
	stopErr error
}

func (f *fakeSink) AddTask(id int64) error {
	f.added = append(f.added, id)
	return f.addErr
}

func (f *fakeSink) Stop() error {
	f.stopped = true
	return f.stopErr
}

func TestSubmitterHappyPathHandsOffToStatusCrawler(t *testing.T) {
	subs := store.NewMemorySubmissionStore()
	id, err := subs.Insert(context.Background(), &model.Submission{OJName: "hdu", ProblemID: "1001", Language: "cpp", SourceCode: "int main(){}"})
	require.NoError(t, err)

	client := siteclient.NewMockClient("hdu", "alice")
	client.SubmitResults = []siteclient.MockSubmitResult{{RunID: "run-1"}}

	q := queue.NewInMemory(4)
	sink := &fakeSink{}

	s, err := New(client, "hdu", subs, q, sink)
	require.NoError(t, err)

	q.Push(queue.SubmitTask{ID: id})
	go s.Run(context.Background())

	require.Eventually(t, func() bool {
		got, _ := subs.Get(context.Background(), id)
		return got.Verdict == model.VerdictBeingJudged
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	<-s.Done()

	got, _ := subs.Get(context.Background(), id)
	assert.Equal(t, model.VerdictBeingJudged, got.Verdict)
	require.NotNil(t, got.RunID)
	assert.Equal(t, "run-1", *got.RunID)
	assert.Contains(t, sink.added, id)
	assert.True(t, sink.stopped, "Submitter must stop its paired StatusCrawler before returning")
}

func TestSubmitterSubmitRejectedCommitsSubmitFailed(t *testing.T) {
	subs := store.NewMemorySubmissionStore()
	id, _ := subs.Insert(context.Background(), &model.Submission{OJName: "hdu", ProblemID: "1001", Language: "cpp", SourceCode: "bad"})

	client := siteclient.NewMockClient("hdu", "alice")
	client.SubmitResults = []siteclient.MockSubmitResult{{Err: siteclient.ErrSubmitRejected}}

	q := queue.NewInMemory(4)
	sink := &fakeSink{}
	s, err := New(client, "hdu", subs, q, sink)
	require.NoError(t, err)

	q.Push(queue.SubmitTask{ID: id})
	go s.Run(context.Background())

	require.Eventually(t, func() bool {
		got, _ := subs.Get(context.Background(), id)
		return model.IsTerminal(got.Verdict)
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	<-s.Done()

	got, _ := subs.Get(context.Background(), id)
	assert.Equal(t, model.VerdictSubmitFailed, got.Verdict)
}

func TestSubmitterLoginExpiredReEnqueuesUpToMaxRetries(t *testing.T) {
	subs := store.NewMemorySubmissionStore()
	id, _ := subs.Insert(context.Background(), &model.Submission{OJName: "hdu", ProblemID: "1001", Language: "cpp", SourceCode: "x"})

	client := siteclient.NewMockClient("hdu", "alice")
	// Always report LoginExpired; UpdateCookies always succeeds (default nil err).
	client.SubmitResults = []siteclient.MockSubmitResult{
		{Err: siteclient.ErrLoginExpired},
		{Err: siteclient.ErrLoginExpired},
		{Err: siteclient.ErrLoginExpired},
		{Err: siteclient.ErrLoginExpired},
	}

	q := queue.NewInMemory(8)
	sink := &fakeSink{}
	s, err := New(client, "hdu", subs, q, sink)
	require.NoError(t, err)

	q.Push(queue.SubmitTask{ID: id})
	go s.Run(context.Background())

	require.Eventually(t, func() bool {
		got, _ := subs.Get(context.Background(), id)
		return got.Verdict == model.VerdictSubmitFailed
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	<-s.Done()

	assert.GreaterOrEqual(t, client.SubmitCallCount(), maxLoginExpiredRetries+1)
}

func TestSubmitterLoginExpiredReLoginFailureIsTerminal(t *testing.T) {
	subs := store.NewMemorySubmissionStore()
	id, _ := subs.Insert(context.Background(), &model.Submission{OJName: "hdu", ProblemID: "1001", Language: "cpp", SourceCode: "x"})

	client := siteclient.NewMockClient("hdu", "alice")
	client.SubmitResults = []siteclient.MockSubmitResult{{Err: siteclient.ErrLoginExpired}}
	client.UpdateCookiesErr = errors.New("connection refused")

	q := queue.NewInMemory(4)
	sink := &fakeSink{}
	s, err := New(client, "hdu", subs, q, sink)
	require.NoError(t, err)

	q.Push(queue.SubmitTask{ID: id})
	go s.Run(context.Background())

	require.Eventually(t, func() bool {
		got, _ := subs.Get(context.Background(), id)
		return got.Verdict == model.VerdictSubmitFailed
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	<-s.Done()
}
