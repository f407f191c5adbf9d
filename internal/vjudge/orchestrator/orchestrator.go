// Package orchestrator implements the VJudge root of spec.md §4.6: owns the
// account tables and both handlers, recovers pending work at boot, and runs
// each handler as a background worker until the process is asked to stop.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"vjudge-orchestrator/internal/vjudge/accounts"
	"vjudge-orchestrator/internal/vjudge/crawlhandler"
	"vjudge-orchestrator/internal/vjudge/model"
	"vjudge-orchestrator/internal/vjudge/submithandler"
)

// DefaultRetryUnavailableInterval is the original's hourly top-level retry
// loop (SPEC_FULL.md §7), independent of SubmitterHandler's idle-reap
// interval even though both default to an hour.
const DefaultRetryUnavailableInterval = time.Hour

// VJudge is the orchestrator root: it owns the account tables, starts the
// two handlers as background workers, and periodically retries logging in
// any configured OJ that never became available.
type VJudge struct {
	accts   *model.Accounts
	submit  *submithandler.Handler
	crawl   *crawlhandler.Handler

	retryInterval time.Duration

	wg sync.WaitGroup
}

// New builds a VJudge root. Construction is inert (logs a warning and
// proceeds) if accts has no configured OJ at all, per spec.md §4.6 —
// SubmitterHandler then cannot start a group for any OJ and commits every
// dispatched submission as Submit Failed.
func New(accts *model.Accounts, submit *submithandler.Handler, crawl *crawlhandler.Handler) *VJudge {
	if accounts.Empty(accts) {
		log.Println("orchestrator: no accounts configured, starting inert (submissions will be marked Submit Failed)")
	}
	return &VJudge{
		accts:         accts,
		submit:        submit,
		crawl:         crawl,
		retryInterval: DefaultRetryUnavailableInterval,
	}
}

// SetRetryUnavailableInterval overrides the default 1h retry-unavailable-OJs
// policy (SPEC_FULL.md §7).
func (v *VJudge) SetRetryUnavailableInterval(d time.Duration) { v.retryInterval = d }

// Start recovers pending submissions, then launches both handlers and the
// availability-retry ticker as background goroutines. It returns
// immediately; callers join via Wait.
func (v *VJudge) Start(ctx context.Context) error {
	if err := v.submit.RecoverPending(ctx); err != nil {
		return err
	}

	v.wg.Add(3)
	go func() {
		defer v.wg.Done()
		v.submit.Run(ctx)
	}()
	go func() {
		defer v.wg.Done()
		v.crawl.Run(ctx)
	}()
	go func() {
		defer v.wg.Done()
		v.retryUnavailableOJs(ctx)
	}()

	log.Printf("orchestrator: started with %d configured oj(s)", len(v.accts.ConfiguredOJs()))
	v.logAvailability(ctx)
	return nil
}

// Wait blocks until every background worker has returned, for graceful
// shutdown join semantics.
func (v *VJudge) Wait() { v.wg.Wait() }

// retryUnavailableOJs is the original base.py `run` loop's periodic
// re-attempt of `_add_judge` for any OJ whose account login failed at boot
// (SPEC_FULL.md §7): every retryInterval, diff configured OJs against
// currently-available ones and ask SubmitterHandler to try again.
func (v *VJudge) retryUnavailableOJs(ctx context.Context) {
	ticker := time.NewTicker(v.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.logAvailability(ctx)
		}
	}
}

func (v *VJudge) logAvailability(ctx context.Context) {
	available := make(map[string]bool)
	for _, name := range v.submit.AvailableOJs() {
		available[name] = true
	}

	var newlyAvailable []string
	for _, ojName := range v.accts.ConfiguredOJs() {
		if available[ojName] {
			continue
		}
		if v.submit.EnsureGroup(ctx, ojName) {
			newlyAvailable = append(newlyAvailable, ojName)
		}
	}

	if len(newlyAvailable) > 0 {
		log.Printf("orchestrator: %v are now available", newlyAvailable)
	}
}
