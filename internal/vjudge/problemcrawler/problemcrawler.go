// Package problemcrawler implements the ProblemCrawler worker of spec.md
// §4.3: one per OJ, draining a per-OJ in-memory problem-refresh queue and
// upserting problem metadata.
package problemcrawler

import (
	"context"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"vjudge-orchestrator/internal/vjudge/model"
	"vjudge-orchestrator/internal/vjudge/queue"
	"vjudge-orchestrator/internal/vjudge/siteclient"
	"vjudge-orchestrator/internal/vjudge/store"
)

// dequeueTimeout mirrors Submitter's 60s wake-up so the stop flag is
// observed in bounded time.
const dequeueTimeout = 60 * time.Second

// Crawler is one ProblemCrawler: one anonymous SiteClient per OJ. At most
// one refresh runs concurrently per OJ because there is exactly one
// Crawler per OJ (spec.md §4.3's guarantee) — no per-problem locking is
// needed since Upsert is idempotent on (OJName, ProblemID).
type Crawler struct {
	client  siteclient.Client
	ojName  string
	problems store.ProblemStore
	queue   *queue.InMemoryProblems

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a ProblemCrawler for an anonymous client and its in-memory
// problem queue.
func New(client siteclient.Client, ojName string, problems store.ProblemStore, q *queue.InMemoryProblems) *Crawler {
	return &Crawler{
		client:   client,
		ojName:   ojName,
		problems: problems,
		queue:    q,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run drains the problem queue until Stop is called.
func (c *Crawler) Run(ctx context.Context) {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		problemID, ok := c.queue.Pop(ctx, dequeueTimeout)
		if !ok {
			continue
		}
		c.refresh(ctx, problemID)
	}
}

func (c *Crawler) refresh(ctx context.Context, problemID string) {
	tracer := otel.Tracer("vjudge-problemcrawler")
	ctx, span := tracer.Start(ctx, "problemcrawler.refresh")
	defer span.End()
	span.SetAttributes(
		attribute.String("vjudge.oj_name", c.ojName),
		attribute.String("vjudge.problem_id", problemID),
	)

	result, err := c.client.GetProblem(ctx, problemID)
	if errors.Is(err, siteclient.ErrConnection) {
		span.RecordError(err)
		return
	}
	if err != nil {
		span.RecordError(err)
		return
	}
	if result.Empty() {
		return
	}

	p := &model.Problem{
		OJName:       c.ojName,
		ProblemID:    problemID,
		Title:        result.Title,
		Description:  result.Description,
		Input:        result.Input,
		Output:       result.Output,
		SampleInput:  result.SampleInput,
		SampleOutput: result.SampleOutput,
		TimeLimitMS:  result.TimeLimitMS,
		MemLimitKB:   result.MemLimitKB,
	}
	if err := c.problems.Upsert(ctx, p); err != nil {
		log.Printf("problemcrawler[%s]: upsert %s: %v", c.ojName, problemID, err)
		return
	}
	log.Printf("problemcrawler[%s]: problem update: %s", c.ojName, p.Summary())
}

// Stop signals Run to return after its current iteration.
func (c *Crawler) Stop() {
	close(c.stopCh)
}

// Done reports when Run has returned.
func (c *Crawler) Done() <-chan struct{} { return c.doneCh }
