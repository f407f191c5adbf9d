package orchestrator

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vjudge-orchestrator/internal/vjudge/crawlhandler"
	"vjudge-orchestrator/internal/vjudge/model"
	"vjudge-orchestrator/internal/vjudge/oj"
	"vjudge-orchestrator/internal/vjudge/queue"
	"vjudge-orchestrator/internal/vjudge/siteclient"
	"vjudge-orchestrator/internal/vjudge/store"
	"vjudge-orchestrator/internal/vjudge/submithandler"
)

func registerAcceptingMock(r *oj.Registry, ojName string) {
	r.Register(ojName,
		func(ctx context.Context) (siteclient.Client, error) {
			return siteclient.NewMockClient(ojName, ""), nil
		},
		func(ctx context.Context, username, password string) (siteclient.Client, error) {
			c := siteclient.NewMockClient(ojName, username)
			c.SubmitResults = []siteclient.MockSubmitResult{{RunID: "run-1"}}
			return c, nil
		},
	)
}

func newTestVJudge(accts *model.Accounts, registry *oj.Registry) (*VJudge, store.SubmissionStore) {
	subs := store.NewMemorySubmissionStore()
	problems := store.NewMemoryProblemStore()
	submitDurable := queue.NewMemoryDurable()
	crawlDurable := queue.NewMemoryDurable()

	submit := submithandler.New(submitDurable, subs, registry, accts)
	crawl := crawlhandler.New(crawlDurable, problems, registry)
	return New(accts, submit, crawl), subs
}

func TestNewLogsInertWarningWhenNoAccountsConfigured(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)

	accts := &model.Accounts{Normal: map[string][]model.Account{}, Contest: map[string][]model.Account{}}
	_, _ = newTestVJudge(accts, oj.NewRegistry())

	assert.Contains(t, buf.String(), "no accounts configured")
}

func TestStartRecoversPendingSubmissionsBeforeLaunchingWorkers(t *testing.T) {
	accts := &model.Accounts{
		Normal:  map[string][]model.Account{"hdu": {{Username: "alice", Password: "p"}}},
		Contest: map[string][]model.Account{},
	}
	registry := oj.NewRegistry()
	registerAcceptingMock(registry, "hdu")
	v, subs := newTestVJudge(accts, registry)

	id, err := subs.Insert(context.Background(), &model.Submission{OJName: "hdu", ProblemID: "1001", Language: "cpp", SourceCode: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, v.Start(ctx))

	require.Eventually(t, func() bool {
		got, _ := subs.Get(context.Background(), id)
		return got.Verdict == model.VerdictBeingJudged
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRetryUnavailableOJsEventuallyPicksUpLateRegistration(t *testing.T) {
	accts := &model.Accounts{
		Normal:  map[string][]model.Account{"hdu": {{Username: "alice", Password: "p"}}},
		Contest: map[string][]model.Account{},
	}
	registry := oj.NewRegistry() // "hdu" not registered yet: first EnsureGroup attempt fails.
	v, _ := newTestVJudge(accts, registry)
	v.SetRetryUnavailableInterval(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, v.Start(ctx))

	// Nothing available yet: the registry has no constructor for "hdu".
	assert.NotContains(t, v.submit.AvailableOJs(), "hdu")

	// Registering late simulates an OJ config becoming available after the
	// configured interval ticks.
	registerAcceptingMock(registry, "hdu")

	require.Eventually(t, func() bool {
		return contains(v.submit.AvailableOJs(), "hdu")
	}, time.Second, 10*time.Millisecond)
}

func TestWaitBlocksUntilContextCancellation(t *testing.T) {
	accts := &model.Accounts{Normal: map[string][]model.Account{}, Contest: map[string][]model.Account{}}
	v, _ := newTestVJudge(accts, oj.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, v.Start(ctx))

	done := make(chan struct{})
	go func() {
		v.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before context was cancelled")
	case <-time.After(30 * time.Millisecond):
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after context cancellation")
	}
}

func contains(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}
