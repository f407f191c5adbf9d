// Package submitter implements the Submitter worker of spec.md §4.1: one
// per (OJ, account), draining a per-OJ in-memory submit queue and
// dispatching each submission to the remote OJ.
package submitter

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"vjudge-orchestrator/internal/vjudge/model"
	"vjudge-orchestrator/internal/vjudge/queue"
	"vjudge-orchestrator/internal/vjudge/siteclient"
	"vjudge-orchestrator/internal/vjudge/store"
)

// dequeueTimeout is how long Pop blocks before looping to re-check the stop
// flag (spec.md §4.1/§5).
const dequeueTimeout = 60 * time.Second

// maxLoginExpiredRetries bounds the LoginExpired re-enqueue loop (spec.md
// §9 Open Question 2's "suggested 3").
const maxLoginExpiredRetries = 3

// StatusSink is the paired StatusCrawler's handoff surface. Kept as an
// interface (rather than importing statuscrawler directly) to avoid a
// submitter<->statuscrawler import cycle — the two share no session but do
// share this one call.
type StatusSink interface {
	AddTask(id int64) error
	Stop() error
}

// Submitter drains one per-OJ in-memory submit queue for one borrowed
// account.
type Submitter struct {
	client   siteclient.Client
	ojName   string
	userID   string
	queue    *queue.InMemory
	subs     store.SubmissionStore
	status   StatusSink

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Submitter for an already-authenticated client, its paired
// in-memory submit queue, and the StatusCrawler it hands completed submits
// to.
func New(client siteclient.Client, ojName string, subs store.SubmissionStore, q *queue.InMemory, status StatusSink) (*Submitter, error) {
	userID, err := client.UserID()
	if err != nil {
		return nil, err
	}
	return &Submitter{
		client: client,
		ojName: ojName,
		userID: userID,
		queue:  q,
		subs:   subs,
		status: status,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// UserID returns the borrowed account's username.
func (s *Submitter) UserID() string { return s.userID }

// Run drains the submit queue until Stop is called. It is meant to be
// launched with `go s.Run(ctx)`.
func (s *Submitter) Run(ctx context.Context) {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			// Outstanding work already dequeued was processed
			// synchronously above; nothing left in flight. Ask the
			// paired StatusCrawler to stop and join it before
			// returning (spec.md §4.1's stop semantics).
			if err := s.status.Stop(); err != nil {
				log.Printf("submitter[%s/%s]: stopping paired status crawler: %v", s.ojName, s.userID, err)
			}
			return
		default:
		}

		task, ok := s.queue.Pop(ctx, dequeueTimeout)
		if !ok {
			continue
		}
		s.process(ctx, task)
	}
}

// process implements the per-dequeued-id algorithm of spec.md §4.1.
func (s *Submitter) process(ctx context.Context, task queue.SubmitTask) {
	tracer := otel.Tracer("vjudge-submitter")
	ctx, span := tracer.Start(ctx, "submitter.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("vjudge.oj_name", s.ojName),
		attribute.Int64("vjudge.submission_id", task.ID),
	)

	sub, err := s.subs.Get(ctx, task.ID)
	if err != nil {
		log.Printf("submitter[%s/%s]: submission %d vanished: %v", s.ojName, s.userID, task.ID, err)
		return
	}

	switch sub.Verdict {
	case model.VerdictBeingJudged:
		// Recovery path: already submitted on a previous run, just needs
		// polling.
		if err := s.status.AddTask(task.ID); err != nil {
			log.Printf("submitter[%s/%s]: re-handing %d to status crawler: %v", s.ojName, s.userID, task.ID, err)
		}
		return
	case model.VerdictQueuing:
		// fall through to submit below.
	default:
		// Late-arriving stale id; drop silently.
		return
	}

	runID, err := s.client.SubmitProblem(ctx, sub.ProblemID, sub.Language, sub.SourceCode)
	switch {
	case err == nil:
		if err := s.subs.SetSubmitted(ctx, task.ID, runID, s.userID); err != nil {
			log.Printf("submitter[%s/%s]: commit submitted %d: %v", s.ojName, s.userID, task.ID, err)
			return
		}
		log.Printf("submitter[%s/%s]: submission %d -> run %s, Being Judged", s.ojName, s.userID, task.ID, runID)
		if err := s.status.AddTask(task.ID); err != nil {
			log.Printf("submitter[%s/%s]: hand %d to status crawler: %v", s.ojName, s.userID, task.ID, err)
		}

	case errors.Is(err, siteclient.ErrLoginExpired):
		s.handleLoginExpired(ctx, task)

	default:
		// SubmitError or ConnectionError: terminal Submit Failed.
		span.RecordError(err)
		if err := s.subs.SetVerdict(ctx, task.ID, model.VerdictSubmitFailed); err != nil {
			log.Printf("submitter[%s/%s]: commit Submit Failed %d: %v", s.ojName, s.userID, task.ID, err)
		}
		log.Printf("submitter[%s/%s]: submission %d Submit Failed: %v", s.ojName, s.userID, task.ID, err)
	}
}

func (s *Submitter) handleLoginExpired(ctx context.Context, task queue.SubmitTask) {
	if err := s.client.UpdateCookies(ctx); err != nil {
		// ConnectionError during re-login -> Submit Failed.
		if err := s.subs.SetVerdict(ctx, task.ID, model.VerdictSubmitFailed); err != nil {
			log.Printf("submitter[%s/%s]: commit Submit Failed after failed re-login %d: %v", s.ojName, s.userID, task.ID, err)
		}
		return
	}
	if task.Retries >= maxLoginExpiredRetries {
		log.Printf("submitter[%s/%s]: submission %d exhausted %d login-expired retries", s.ojName, s.userID, task.ID, maxLoginExpiredRetries)
		if err := s.subs.SetVerdict(ctx, task.ID, model.VerdictSubmitFailed); err != nil {
			log.Printf("submitter[%s/%s]: commit Submit Failed after retry exhaustion %d: %v", s.ojName, s.userID, task.ID, err)
		}
		return
	}
	s.queue.Push(queue.SubmitTask{ID: task.ID, Retries: task.Retries + 1})
}

// Stop signals Run to drain outstanding work and return. Idempotent.
func (s *Submitter) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Done reports (via channel) when Run has returned, for join semantics.
func (s *Submitter) Done() <-chan struct{} { return s.doneCh }
