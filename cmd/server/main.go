package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/qdrant/go-client/qdrant"

	"github.com/minh/wayloop/config"
	routecache "github.com/minh/wayloop/internal/cache"
	"github.com/minh/wayloop/internal/handler"
	"github.com/minh/wayloop/internal/middleware"
	"github.com/minh/wayloop/internal/repository"
	"github.com/minh/wayloop/internal/routing"
	"github.com/minh/wayloop/internal/semantic"
	"github.com/minh/wayloop/internal/service"
	"github.com/minh/wayloop/internal/spatial"
	"github.com/minh/wayloop/pkg/cache"
	"github.com/minh/wayloop/pkg/db"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, &cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer pgPool.Close()
	log.Println("✓ PostgreSQL connected")

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ── Connect to Qdrant ───────────────────────────────
	qd, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	})
	if err != nil {
		log.Fatalf("failed to connect to Qdrant: %v", err)
	}
	defer qd.Close()
	log.Println("✓ Qdrant connected")

	// ── Initialize layers ───────────────────────────────
	poiRepo := repository.NewPOIRepository(pgPool, cfg.Postgres.QueryTimeout)

	spatialSrc := spatial.NewSource(poiRepo, redisClient, &cfg.Routing, cfg.Redis.OpTimeout)
	embedder := semantic.NewEmbedder(cfg.Embedding.URL, cfg.Embedding.Timeout, cfg.Embedding.UseAsymmetric)
	semanticSrc := semantic.NewSource(embedder, qd, cfg.Qdrant.Collection, cfg.Qdrant.QueryTimeout)
	routeStore := routecache.NewStore(redisClient, cfg.Routing.UserCacheTTL, cfg.Routing.POICacheTTL, cfg.Redis.OpTimeout)
	builderPool := routing.NewPool(cfg.Routing.BuilderWorkers)

	planner := service.NewPlanner(spatialSrc, semanticSrc, poiRepo, routeStore, builderPool, &cfg.Routing)
	substituter := service.NewSubstituter(poiRepo, routeStore, &cfg.Routing)

	routeHandler := handler.NewRouteHandler(planner, substituter)
	healthHandler := handler.NewHealthHandler(map[string]func(context.Context) error{
		"postgres": func(ctx context.Context) error { return db.HealthCheck(ctx, pgPool) },
		"redis":    func(ctx context.Context) error { return cache.HealthCheck(ctx, redisClient) },
		"qdrant": func(ctx context.Context) error {
			_, err := qd.HealthCheck(ctx)
			return err
		},
	})

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	// Health check endpoint.
	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	// API v1 routes.
	routeHandler.Register(router)

	// Wrap with logging, panic recovery, and CORS so browser clients can call the API.
	h := middleware.CORS(middleware.RequestLogger(middleware.Recoverer(router)))

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Server.ServerAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("⏳ Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}
