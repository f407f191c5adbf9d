package problemcrawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vjudge-orchestrator/internal/vjudge/queue"
	"vjudge-orchestrator/internal/vjudge/siteclient"
	"vjudge-orchestrator/internal/vjudge/store"
)

func TestCrawlerRefreshUpsertsProblem(t *testing.T) {
	client := siteclient.NewMockClient("hdu", "")
	client.ProblemResult = siteclient.ProblemAttrs{Title: "A+B Problem", TimeLimitMS: 1000, MemLimitKB: 32768}

	problems := store.NewMemoryProblemStore()
	q := queue.NewInMemoryProblems(4)
	c := New(client, "hdu", problems, q)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	q.Push("1001")

	require.Eventually(t, func() bool {
		got, err := problems.Get(context.Background(), "hdu", "1001")
		return err == nil && got.Title == "A+B Problem"
	}, time.Second, 5*time.Millisecond)

	c.Stop()
	<-c.Done()
}

func TestCrawlerConnectionErrorSkipsUpsert(t *testing.T) {
	client := siteclient.NewMockClient("hdu", "")
	client.ProblemErr = siteclient.ErrConnection

	problems := store.NewMemoryProblemStore()
	q := queue.NewInMemoryProblems(4)
	c := New(client, "hdu", problems, q)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	q.Push("1001")

	// Give the crawler a moment to process the task, then assert nothing
	// was committed and the worker is still alive (didn't crash).
	time.Sleep(50 * time.Millisecond)
	_, err := problems.Get(context.Background(), "hdu", "1001")
	assert.ErrorIs(t, err, store.ErrNotFound)

	c.Stop()
	<-c.Done()
}

func TestCrawlerEmptyResultSkipsUpsert(t *testing.T) {
	client := siteclient.NewMockClient("hdu", "")
	client.ProblemResult = siteclient.ProblemAttrs{}

	problems := store.NewMemoryProblemStore()
	q := queue.NewInMemoryProblems(4)
	c := New(client, "hdu", problems, q)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	q.Push("1002")

	time.Sleep(50 * time.Millisecond)
	_, err := problems.Get(context.Background(), "hdu", "1002")
	assert.ErrorIs(t, err, store.ErrNotFound)

	c.Stop()
	<-c.Done()
}

func TestCrawlerStopThenDoneCloses(t *testing.T) {
	client := siteclient.NewMockClient("hdu", "")
	problems := store.NewMemoryProblemStore()
	q := queue.NewInMemoryProblems(4)
	c := New(client, "hdu", problems, q)

	go c.Run(context.Background())
	c.Stop()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
