package queue

import (
	"context"
	"log"

	"github.com/hibiken/asynq"
)

// TaskTypePeriodicRefresh is the asynq task type used purely as a timer:
// its handler invokes CrawlerHandler's periodic refresh (stale problems +
// forward-prefetch, spec.md §4.5) on a cron tick, instead of threading that
// logic through the raw BLPop durable-queue timeout path. This keeps the
// BLPop-shaped ingress contract of §6.1 literal while still letting the
// pack's asynq dependency do the scheduling work it's built for.
const TaskTypePeriodicRefresh = "vjudge:periodic_refresh"

// PeriodicRefreshScheduler runs an asynq cron schedule that fires
// onTick on the given interval.
type PeriodicRefreshScheduler struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
	onTick    func(ctx context.Context) error
}

// NewPeriodicRefreshScheduler builds a scheduler over redisOpt that invokes
// onTick every cronSpec (e.g. "@every 10m").
func NewPeriodicRefreshScheduler(redisOpt asynq.RedisClientOpt, cronSpec string, onTick func(ctx context.Context) error) (*PeriodicRefreshScheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register(cronSpec, asynq.NewTask(TaskTypePeriodicRefresh, nil)); err != nil {
		return nil, err
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{"default": 1},
	})

	return &PeriodicRefreshScheduler{scheduler: scheduler, server: server, onTick: onTick}, nil
}

// Start runs the scheduler and its consuming server in the background.
// Both must be stopped with Stop on shutdown.
func (p *PeriodicRefreshScheduler) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePeriodicRefresh, func(ctx context.Context, t *asynq.Task) error {
		if err := p.onTick(ctx); err != nil {
			log.Printf("periodic refresh tick failed: %v", err)
			return err
		}
		return nil
	})

	if err := p.scheduler.Start(); err != nil {
		return err
	}
	go func() {
		if err := p.server.Run(mux); err != nil {
			log.Printf("periodic refresh server stopped: %v", err)
		}
	}()
	return nil
}

// Stop halts both the cron scheduler and the consuming server.
func (p *PeriodicRefreshScheduler) Stop() {
	p.scheduler.Shutdown()
	p.server.Shutdown()
}
