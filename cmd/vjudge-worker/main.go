// Command vjudge-worker is the vjudge orchestrator process: it loads
// OJ_CONFIG, wires the durable queues and handlers, starts the VJudge root,
// and serves a small operator-facing status/metrics API.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"vjudge-orchestrator/internal/vjudge/accounts"
	"vjudge-orchestrator/internal/vjudge/crawlhandler"
	"vjudge-orchestrator/internal/vjudge/live"
	"vjudge-orchestrator/internal/vjudge/metrics"
	"vjudge-orchestrator/internal/vjudge/oj"
	"vjudge-orchestrator/internal/vjudge/orchestrator"
	"vjudge-orchestrator/internal/vjudge/queue"
	"vjudge-orchestrator/internal/vjudge/sandboxcheck"
	"vjudge-orchestrator/internal/vjudge/store"
	"vjudge-orchestrator/internal/vjudge/submithandler"
	"vjudge-orchestrator/internal/tracing"
	"vjudge-orchestrator/pkg/database"
	"vjudge-orchestrator/pkg/middleware"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "diag" {
		runDiag(os.Args[2:])
		return
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	tracingConfig := tracing.DefaultConfig()
	tracingConfig.ServiceName = "vjudge-worker"
	tracingConfig.ServiceVersion = "1.0.0"
	tracingShutdown := tracing.InitTracing(tracingConfig)
	if tracingShutdown != nil {
		defer func() {
			if err := tracingShutdown(context.Background()); err != nil {
				log.Printf("Error shutting down tracing: %v", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.NewConnection()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	subs := store.NewPostgresSubmissionStore(db.Pool)
	problems := store.NewPostgresProblemStore(db.Pool)

	redisDB, err := strconv.Atoi(getenv("REDIS_DB", "0"))
	if err != nil {
		log.Fatal("Invalid REDIS_DB:", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     getenv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	})
	defer rdb.Close()

	submitQueue := queue.NewRedisDurable(rdb, getenv("SUBMIT_QUEUE_KEY", "vjudge:submit_queue"))
	problemQueue := queue.NewRedisDurable(rdb, getenv("PROBLEM_QUEUE_KEY", "vjudge:problem_queue"))

	accts, err := accounts.Load(getenv("OJ_CONFIG_PATH", "oj_config.json"))
	if err != nil {
		log.Fatal("Failed to load OJ_CONFIG:", err)
	}

	registry := oj.NewRegistry()
	oj.RegisterLocalDemo(registry)
	// Concrete per-site adapters (HDU, SCU, POJ, ...) register themselves
	// here in a real deployment; this worker only depends on the registry
	// interface (spec.md §1).

	hub := live.NewHub()
	go hub.Run(ctx)

	submitHandler := submithandler.New(submitQueue, subs, registry, accts)
	submitHandler.SetLiveHub(hub)
	crawlHandler := crawlhandler.New(problemQueue, problems, registry)

	vjudge := orchestrator.New(accts, submitHandler, crawlHandler)
	if err := vjudge.Start(ctx); err != nil {
		log.Fatal("Failed to start vjudge orchestrator:", err)
	}

	redisOpt := asynq.RedisClientOpt{Addr: getenv("REDIS_ADDR", "localhost:6379"), Password: os.Getenv("REDIS_PASSWORD")}
	refreshScheduler, err := queue.NewPeriodicRefreshScheduler(redisOpt, getenv("REFRESH_CRON", "@every 10m"), crawlHandler.RefreshPeriodic)
	if err != nil {
		log.Printf("Warning: periodic refresh scheduler disabled: %v", err)
	} else if err := refreshScheduler.Start(); err != nil {
		log.Printf("Warning: periodic refresh scheduler failed to start: %v", err)
	} else {
		defer refreshScheduler.Stop()
	}

	serveStatusAPI(ctx, hub, submitHandler)

	log.Println("vjudge-worker started successfully")
	log.Println("Press Ctrl+C to stop the worker")

	<-ctx.Done()
	log.Println("Shutting down vjudge-worker...")
	vjudge.Wait()
}

func runDiag(args []string) {
	if len(args) == 0 || args[0] != "docker" {
		log.Fatal("usage: vjudge-worker diag docker")
	}
	report := sandboxcheck.Probe(context.Background())
	log.Println(report.String())
}

func serveStatusAPI(ctx context.Context, hub *live.Hub, submitHandler *submithandler.Handler) {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(tracing.HTTPMiddleware("vjudge-worker"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(middleware.StaticAdminToken{}))

		r.Get("/status/available-ojs", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string][]string{
				"available_ojs": submitHandler.AvailableOJs(),
			})
		})

		r.Handle("/metrics", metrics.Handler())
	})

	r.Handle("/live", hub)

	port := getenv("METRICS_PORT", "8082")
	server := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		log.Printf("Status API listening on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Status API error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
