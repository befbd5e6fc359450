package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbridge/internal/api"
	"chatbridge/internal/config"
	"chatbridge/internal/redis"
	"chatbridge/internal/service/assistant"
	"chatbridge/internal/service/responder"
	"chatbridge/internal/storage"
	"chatbridge/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env loaded: %v", err)
	}

	cfg, err := config.Load(os.Getenv("CHATBRIDGE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("CHATBRIDGE_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()
	cache := assistant.NewSessionCache(rdb, time.Duration(cfg.Redis.SessionListTTL)*time.Second)

	opts := assistant.Options{
		Driver:        dbType,
		Cache:         cache,
		FallbackReply: cfg.BasicConfig.FallbackReply,
		ErrorReply:    cfg.BasicConfig.ErrorReply,
	}
	var model *responder.Model
	switch cfg.Responder.Mode {
	case config.ResponderModel:
		model, err = responder.NewModel(ctx, cfg)
		if err != nil {
			log.Fatalf("init model responder: %v", err)
		}
		opts.Responder = model
		opts.OnSessionDeleted = model.Forget
		cache.ListenDeleted(ctx, model.Forget)
		log.Printf("responder: model %s", cfg.Responder.Provider)
	default:
		hook, err := responder.NewWebhook(cfg.Responder)
		if err != nil {
			log.Fatalf("init webhook responder: %v", err)
		}
		opts.Responder = hook
		log.Printf("responder: webhook %s", cfg.Responder.WebhookURL)
	}

	assistantService, err := assistant.NewService(db, opts)
	if err != nil {
		log.Fatalf("init assistant service: %v", err)
	}
	if model != nil {
		model.SetHistoryLoader(assistantService.History)
	}

	dispatcher := worker.NewDispatcher(assistantService, worker.Options{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Second,
	})
	handlers := api.NewHandler(assistantService, dispatcher)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           corsHandler(cfg.BasicConfig.AllowedOrigins).Handler(router),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chat api listening on %s", srv.Addr)
	shutdownTimeout := time.Duration(cfg.BasicConfig.ShutdownTimeout) * time.Second
	if err := runServer(ctx, srv, dispatcher, shutdownTimeout); err != nil {
		log.Printf("server error: %v", err)
	}
}

func corsHandler(origins []string) *cors.Cors {
	if len(origins) == 0 {
		return cors.AllowAll()
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
}

// runServer serves until ctx ends, then stops taking requests and lets the
// dispatcher finish in-flight turns before returning.
func runServer(ctx context.Context, srv *http.Server, dispatcher *worker.Dispatcher, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Println("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if serveErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Printf("dispatcher shutdown: %v", err)
	}
	if serveErr != nil && errors.Is(serveErr, http.ErrServerClosed) {
		return nil
	}
	return serveErr
}
