package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"pgbroker/internal/broker"
	"pgbroker/internal/config"
	"pgbroker/internal/gc"
	"pgbroker/internal/metrics"
	"pgbroker/internal/storage"
)

func main() {
	// Init Metrics
	metrics.Init()

	// Load Configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded")

	// Init one store and one channel layer per configured alias
	stores := make(map[string]*storage.Store, len(cfg.Databases))
	layers := make(map[string]broker.ChannelLayer, len(cfg.Databases))
	for alias, dsn := range cfg.Databases {
		store, err := storage.NewStore(dsn)
		if err != nil {
			log.Fatalf("Failed to init store %s: %v", alias, err)
		}
		defer store.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := store.Migrate(migrateCtx); err != nil {
			cancel()
			log.Fatalf("Failed to migrate store %s: %v", alias, err)
		}
		cancel()

		stores[alias] = store
		layers[alias] = broker.New(store, broker.Options{
			Prefix:          cfg.Broker.Prefix,
			MessageExpiry:   time.Duration(cfg.Broker.MessageExpirySeconds) * time.Second,
			GroupExpiry:     time.Duration(cfg.Broker.GroupExpirySeconds) * time.Second,
			ReceiveWait:     time.Duration(cfg.Broker.ReceiveWaitSeconds) * time.Second,
			Capacity:        cfg.Broker.Capacity,
			ChannelCapacity: cfg.Broker.ChannelCapacity,
			Alias:           alias,
		})
		log.Printf("PostgreSQL connected for store %s", alias)
	}

	// Start a GC sweeper per store
	sweepGroups := cfg.Broker.GroupExpirySeconds > 0
	workers := make([]*gc.Worker, 0, len(stores))
	for alias, store := range stores {
		w := gc.NewWorker(alias, store, time.Duration(cfg.GC.IntervalSeconds)*time.Second, sweepGroups)
		w.Start()
		workers = append(workers, w)
	}

	// Ops endpoints
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		for alias, store := range stores {
			if err := store.DB.PingContext(req.Context()); err != nil {
				log.Printf("Health check failed for store %s: %v", alias, err)
				http.Error(w, "store "+alias+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler())
	r.Post("/flush/{alias}", func(w http.ResponseWriter, req *http.Request) {
		alias := chi.URLParam(req, "alias")
		layer, ok := layers[alias]
		if !ok {
			http.Error(w, "unknown store alias", http.StatusNotFound)
			return
		}
		if err := layer.Flush(req.Context()); err != nil {
			log.Printf("Flush failed for store %s: %v", alias, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		log.Printf("Flushed store %s", alias)
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	// Graceful Shutdown Setup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting ops server on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done() // Wait for interrupt signal
	log.Println("Shutdown initiated...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	for _, w := range workers {
		w.Stop()
	}

	log.Println("Graceful shutdown complete")
}
