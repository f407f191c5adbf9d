// Package submithandler implements SubmitterHandler (spec.md §4.4): the
// bridge between the durable submit queue and per-OJ Submitters, launching
// worker groups lazily and retiring them when idle.
package submithandler

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"vjudge-orchestrator/internal/vjudge/accounts"
	"vjudge-orchestrator/internal/vjudge/live"
	"vjudge-orchestrator/internal/vjudge/metrics"
	"vjudge-orchestrator/internal/vjudge/model"
	"vjudge-orchestrator/internal/vjudge/oj"
	"vjudge-orchestrator/internal/vjudge/oj/contest"
	"vjudge-orchestrator/internal/vjudge/queue"
	"vjudge-orchestrator/internal/vjudge/statuscrawler"
	"vjudge-orchestrator/internal/vjudge/store"
	"vjudge-orchestrator/internal/vjudge/submitter"
)

// dequeuePollTimeout is the durable-queue block timeout (spec.md §4.4).
const dequeuePollTimeout = 600 * time.Second

// DefaultIdleReapInterval is the policy knob of spec.md §9's third open
// question, exposed rather than hard-coded.
const DefaultIdleReapInterval = time.Hour

// contestSessionTTL is the lifetime stamped on the scoped token issued for a
// contest account's StatusCrawler. The token is verified once, when the pair
// is built; the crawler keeps only the verified claims, so the expiry is not
// checked again afterwards.
const contestSessionTTL = 2 * time.Hour

// pair is one running (Submitter, StatusCrawler) for one borrowed account.
type pair struct {
	submitter *submitter.Submitter
	crawler   *statuscrawler.Crawler
}

// ojGroup is the per-OJ worker state of spec.md §4.4: one submitter per
// account, a shared start time used for idle reaping.
type ojGroup struct {
	ojName    string
	startTime time.Time
	pairs     map[string]*pair // username -> pair
}

// Handler is SubmitterHandler.
type Handler struct {
	durable  queue.Durable
	subs     store.SubmissionStore
	registry *oj.Registry
	accts    *model.Accounts

	idleReapInterval time.Duration

	mu          sync.Mutex
	inMemQueues map[string]*queue.InMemory
	groups      map[string]*ojGroup
	lastCleanup time.Time

	queueMetrics  *metrics.QueueMetrics
	workerMetrics *metrics.WorkerMetrics
	liveHub       *live.Hub
}

// New builds a SubmitterHandler.
func New(durable queue.Durable, subs store.SubmissionStore, registry *oj.Registry, accts *model.Accounts) *Handler {
	return &Handler{
		durable:          durable,
		subs:             subs,
		registry:         registry,
		accts:            accts,
		idleReapInterval: DefaultIdleReapInterval,
		inMemQueues:      make(map[string]*queue.InMemory),
		groups:           make(map[string]*ojGroup),
		lastCleanup:      time.Now(),
		queueMetrics:     metrics.NewQueueMetrics(),
		workerMetrics:    metrics.NewWorkerMetrics(),
	}
}

// SetIdleReapInterval overrides the default 1h idle-reap policy.
func (h *Handler) SetIdleReapInterval(d time.Duration) { h.idleReapInterval = d }

// SetLiveHub wires a live.Hub that every StatusCrawler started from here
// will publish terminal verdicts to.
func (h *Handler) SetLiveHub(hub *live.Hub) { h.liveHub = hub }

// RecoverPending replays every persisted Queuing/Being Judged submission
// onto the durable queue, per spec.md §4.4's crash-recovery scan. Order may
// reshuffle relative to the original enqueue order (spec.md §9).
func (h *Handler) RecoverPending(ctx context.Context) error {
	pending, err := h.subs.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, s := range pending {
		if err := h.durable.Push(ctx, strconv.FormatInt(s.ID, 10)); err != nil {
			return err
		}
	}
	return nil
}

// Run drains the durable submit queue until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if time.Since(h.lastCleanup) > h.idleReapInterval {
			h.cleanFreeSubmitters(ctx)
			h.lastCleanup = time.Now()
		}

		payload, ok, err := h.durable.BlockingPop(ctx, dequeuePollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("submithandler: durable pop error: %v", err)
			continue
		}
		if !ok {
			continue
		}

		id, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			log.Printf("submithandler: corrupt submit queue payload %q: %v", payload, err)
			continue
		}

		h.dispatch(ctx, id)
	}
}

func (h *Handler) dispatch(ctx context.Context, id int64) {
	sub, err := h.subs.Get(ctx, id)
	if err != nil {
		log.Printf("submithandler: submission %d missing: %v", id, err)
		return
	}

	h.mu.Lock()
	q, ok := h.inMemQueues[sub.OJName]
	if !ok {
		q = queue.NewInMemory(256)
		h.inMemQueues[sub.OJName] = q
	}
	_, hasGroup := h.groups[sub.OJName]
	h.mu.Unlock()

	if !hasGroup {
		if !h.startGroup(ctx, sub.OJName, q) {
			if err := h.subs.SetVerdict(ctx, id, model.VerdictSubmitFailed); err != nil {
				log.Printf("submithandler: commit Submit Failed %d: %v", id, err)
			}
			return
		}
	}

	q.Push(queue.SubmitTask{ID: id})
	h.queueMetrics.SetSubmitQueueDepth(sub.OJName, q.Len())
}

// startGroup attempts to build and start a Submitter/StatusCrawler pair for
// every account available for ojName, per spec.md §4.4.
func (h *Handler) startGroup(ctx context.Context, ojName string, q *queue.InMemory) bool {
	accts, contestID, ok := accounts.Resolve(h.accts, ojName)
	if !ok || len(accts) == 0 {
		log.Printf("submithandler: no accounts configured for oj %q", ojName)
		return false
	}

	group := &ojGroup{ojName: ojName, pairs: make(map[string]*pair)}

	for _, acct := range accts {
		submitClient, err := h.registry.NewAuthenticated(ctx, baseName(ojName), acct.Username, acct.Password)
		if err != nil {
			log.Printf("submithandler: submit client for %s/%s: %v", ojName, acct.Username, err)
			continue
		}
		statusClient, err := h.registry.NewAuthenticated(ctx, baseName(ojName), acct.Username, acct.Password)
		if err != nil {
			log.Printf("submithandler: status client for %s/%s: %v", ojName, acct.Username, err)
			continue
		}

		crawler := statuscrawler.New(statusClient, ojName, h.subs)
		if h.liveHub != nil {
			crawler.SetLiveHub(h.liveHub)
		}
		if contestID != "" {
			if claims, err := issueContestSession(ojName, contestID, acct.Username); err != nil {
				log.Printf("submithandler: contest session handoff for %s/%s: %v", ojName, acct.Username, err)
			} else {
				crawler.SetContestSession(claims)
			}
		}
		sub, err := submitter.New(submitClient, ojName, h.subs, q, crawler)
		if err != nil {
			log.Printf("submithandler: build submitter for %s/%s: %v", ojName, acct.Username, err)
			continue
		}

		crawler.Start()
		go sub.Run(context.Background())

		group.pairs[acct.Username] = &pair{submitter: sub, crawler: crawler}
		log.Printf("submithandler: account %q logged in to %s successfully", acct.Username, ojName)
	}

	if len(group.pairs) == 0 {
		return false
	}
	group.startTime = time.Now()

	h.mu.Lock()
	h.groups[ojName] = group
	h.mu.Unlock()
	h.workerMetrics.SetActiveSubmitters(ojName, len(group.pairs))
	return true
}

// cleanFreeSubmitters tears down any OJ group whose start time is older
// than idleReapInterval, reclaiming cold sessions (spec.md §4.4).
func (h *Handler) cleanFreeSubmitters(ctx context.Context) {
	cutoff := time.Now().Add(-h.idleReapInterval)

	h.mu.Lock()
	stale := make([]*ojGroup, 0)
	for ojName, group := range h.groups {
		if group.startTime.After(cutoff) {
			continue
		}
		stale = append(stale, group)
		delete(h.groups, ojName)
	}
	h.mu.Unlock()

	for _, group := range stale {
		for username, p := range group.pairs {
			p.submitter.Stop()
			// Join in the background: a stopping submitter finishes its
			// current dequeue wait and its crawler's outstanding polls
			// first, which must not stall the dispatch loop.
			go func(ojName, username string, p *pair) {
				<-p.submitter.Done()
				log.Printf("submithandler: reaped idle submitter %s/%s", ojName, username)
			}(group.ojName, username, p)
		}
		h.workerMetrics.SetActiveSubmitters(group.ojName, 0)
	}
}

// AvailableOJs returns the OJ names with a currently-running submitter
// group, a snapshot used by the orchestrator's availability logging
// (SPEC_FULL.md §7).
func (h *Handler) AvailableOJs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.groups))
	for name := range h.groups {
		names = append(names, name)
	}
	return names
}

// EnsureGroup starts ojName's submitter group if it isn't already running,
// reporting whether it is available afterward. Used by the orchestrator's
// retryUnavailableOJs ticker (SPEC_FULL.md §7) to re-attempt login for OJs
// whose accounts were rejected at boot.
func (h *Handler) EnsureGroup(ctx context.Context, ojName string) bool {
	h.mu.Lock()
	_, hasGroup := h.groups[ojName]
	h.mu.Unlock()
	if hasGroup {
		return true
	}

	h.mu.Lock()
	q, ok := h.inMemQueues[ojName]
	if !ok {
		q = queue.NewInMemory(256)
		h.inMemQueues[ojName] = q
	}
	h.mu.Unlock()

	return h.startGroup(ctx, ojName, q)
}

// baseName strips a contest qualifier so the registry is looked up by the
// OJ's underlying site adapter name (spec.md §9).
func baseName(ojName string) string {
	if base, _, ok := splitContest(ojName); ok {
		return base
	}
	return ojName
}

func splitContest(ojName string) (string, string, bool) {
	return model.SplitContestName(ojName)
}

// issueContestSession mints the scoped token for a borrowed contest account
// and immediately round-trips it through ParseSessionToken, the actual
// hand-off: the StatusCrawler only ever sees a verified SessionClaims, never
// the raw account credentials, so it learns which contest it's polling for
// without a second login.
func issueContestSession(ojName, contestID, username string) (*contest.SessionClaims, error) {
	token, err := contest.IssueSessionToken(ojName, contestID, username, contestSessionTTL)
	if err != nil {
		return nil, err
	}
	return contest.ParseSessionToken(token)
}
