package main

import (
	"log"

	"shopsync-api/internal/config"
	"shopsync-api/internal/replay"
	"shopsync-api/internal/repository"
	"shopsync-api/internal/service"
	"shopsync-api/internal/webhook"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting ShopSync replay worker...")

	cfg := config.MustLoad()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if !cfg.Temporal.Enabled() {
		log.Fatal("TEMPORAL_HOST must be set for the replay worker")
	}

	stores, err := repository.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer stores.Close()

	verifier, err := webhook.NewVerifier(cfg.Webhook.Secret)
	if err != nil {
		log.Fatalf("Failed to initialize webhook verifier: %v", err)
	}

	reconciler := service.NewReconciler(stores.Entities, service.ReconcilerConfig{
		MaxAttempts: cfg.Store.RetryAttempts,
		Backoff:     cfg.Store.RetryBackoff,
	})
	// Replay reads stored events only, so no delivery inbox is needed.
	ingestService := service.NewIngestService(verifier, stores.RawLog, reconciler, nil)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Temporal: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	replay.Register(w, &replay.Activities{
		RawLog:   stores.RawLog,
		Replayer: ingestService,
	})

	log.Printf("Replay worker polling task queue %s", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("Replay worker stopped: %v", err)
	}
}
