// Package crawlhandler implements CrawlerHandler (spec.md §4.5): the
// bridge between the durable problem queue and per-OJ ProblemCrawlers,
// plus the periodic stale-problem / forward-prefetch refresh.
package crawlhandler

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"vjudge-orchestrator/internal/vjudge/metrics"
	"vjudge-orchestrator/internal/vjudge/model"
	"vjudge-orchestrator/internal/vjudge/oj"
	"vjudge-orchestrator/internal/vjudge/problemcrawler"
	"vjudge-orchestrator/internal/vjudge/queue"
	"vjudge-orchestrator/internal/vjudge/store"
)

// dequeuePollTimeout is the durable-queue block timeout (spec.md §4.5).
const dequeuePollTimeout = 600 * time.Second

// forwardPrefetchCount is "the 20 successors of its current maximum
// problem_id" from spec.md §4.5.
const forwardPrefetchCount = 20

// payload is the wire format of spec.md §6.1: a JSON object with a `type`
// discriminator. Only type "problem" with all=false is handled by spec.md;
// other type values are reserved.
type payload struct {
	Type      string `json:"type"`
	OJName    string `json:"oj_name"`
	ProblemID string `json:"problem_id"`
	ContestID string `json:"contest_id"`
	All       bool   `json:"all"`
}

// Handler is CrawlerHandler.
type Handler struct {
	durable  queue.Durable
	problems store.ProblemStore
	registry *oj.Registry

	mu          sync.Mutex
	inMemQueues map[string]*queue.InMemoryProblems
	crawlers    map[string]*problemcrawler.Crawler

	queueMetrics  *metrics.QueueMetrics
	workerMetrics *metrics.WorkerMetrics
}

// New builds a CrawlerHandler.
func New(durable queue.Durable, problems store.ProblemStore, registry *oj.Registry) *Handler {
	return &Handler{
		durable:       durable,
		problems:      problems,
		registry:      registry,
		inMemQueues:   make(map[string]*queue.InMemoryProblems),
		crawlers:      make(map[string]*problemcrawler.Crawler),
		queueMetrics:  metrics.NewQueueMetrics(),
		workerMetrics: metrics.NewWorkerMetrics(),
	}
}

// Run drains the durable problem queue until ctx is cancelled. On a
// durable-pop timeout it runs the periodic refresh.
func (h *Handler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		raw, ok, err := h.durable.BlockingPop(ctx, dequeuePollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("crawlhandler: durable pop error: %v", err)
			continue
		}
		if !ok {
			if err := h.RefreshPeriodic(ctx); err != nil {
				log.Printf("crawlhandler: periodic refresh: %v", err)
			}
			continue
		}

		h.dispatch(ctx, raw)
	}
}

func (h *Handler) dispatch(ctx context.Context, raw string) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		log.Printf("crawlhandler: corrupt problem queue payload %q: %v", raw, err)
		return
	}

	switch p.Type {
	case "problem":
		if p.All {
			// Reserved combination; spec.md §4.5 only defines the
			// all=false forwarding path.
			return
		}
		h.enqueueProblem(ctx, p.OJName, p.ProblemID)
	case "contest":
		// Reserved: no behavior defined by spec.md beyond the shape of
		// the payload.
		log.Printf("crawlhandler: contest-type refresh requests are reserved, dropping %q", raw)
	default:
		log.Printf("crawlhandler: unknown payload type %q", p.Type)
	}
}

// enqueueProblem is called both from Run's dispatch loop and, via
// RefreshPeriodic, from the asynq scheduler's own goroutine (cmd/vjudge-
// worker wires PeriodicRefreshScheduler's cron tick directly to
// RefreshPeriodic). inMemQueues/crawlers are therefore guarded by h.mu
// rather than assumed single-writer.
func (h *Handler) enqueueProblem(ctx context.Context, ojName, problemID string) {
	if !h.registry.Known(baseName(ojName)) {
		log.Printf("crawlhandler: unknown oj %q", ojName)
		return
	}

	h.mu.Lock()
	q, ok := h.inMemQueues[ojName]
	if !ok {
		q = queue.NewInMemoryProblems(256)
		h.inMemQueues[ojName] = q
	}
	_, hasCrawler := h.crawlers[ojName]
	h.mu.Unlock()

	if !hasCrawler {
		if !h.spawnCrawler(ctx, ojName, q) {
			return
		}
	}

	q.Push(problemID)
	h.queueMetrics.SetProblemQueueDepth(ojName, q.Len())
}

func (h *Handler) spawnCrawler(ctx context.Context, ojName string, q *queue.InMemoryProblems) bool {
	client, err := h.registry.NewAnonymous(ctx, baseName(ojName))
	if err != nil {
		log.Printf("crawlhandler: anonymous client for %s: %v", ojName, err)
		return false
	}

	crawler := problemcrawler.New(client, ojName, h.problems, q)
	go crawler.Run(context.Background())

	h.mu.Lock()
	h.crawlers[ojName] = crawler
	h.mu.Unlock()
	h.workerMetrics.IncActiveProblemCrawlers()
	return true
}

// RefreshPeriodic enqueues refresh requests for every stale problem and,
// per OJ, the forwardPrefetchCount successors of its current maximum
// problem id — spec.md §4.5's periodic refresh.
func (h *Handler) RefreshPeriodic(ctx context.Context) error {
	stale, err := h.problems.Stale(ctx)
	if err != nil {
		return err
	}
	for _, p := range stale {
		h.enqueueProblem(ctx, p.OJName, p.ProblemID)
	}

	maxIDs, err := h.problems.MaxProblemID(ctx)
	if err != nil {
		return err
	}
	for ojName, maxID := range maxIDs {
		for i := 1; i <= forwardPrefetchCount; i++ {
			h.enqueueProblem(ctx, ojName, strconv.Itoa(maxID+i))
		}
	}
	return nil
}

func baseName(ojName string) string {
	if base, _, ok := model.SplitContestName(ojName); ok {
		return base
	}
	return ojName
}
