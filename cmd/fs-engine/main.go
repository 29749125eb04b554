package main

import (
	"FlowSentry/internal/api"
	"FlowSentry/internal/bus"
	"FlowSentry/internal/config"
	"FlowSentry/internal/engine"
	"FlowSentry/internal/metadata"
	"FlowSentry/internal/model"
	"FlowSentry/internal/output"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
)

func main() {
	log.Println("Starting fs-engine...")

	// 1. Load configuration
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 2. Connect to the bus
	publisher, err := bus.NewPublisher(cfg.Bus)
	if err != nil {
		log.Fatalf("Failed to create bus publisher: %v", err)
	}
	defer publisher.Close()

	subscriber, err := bus.NewSubscriber(cfg.Bus)
	if err != nil {
		log.Fatalf("Failed to create bus subscriber: %v", err)
	}

	// 3. Start the output router
	router, err := output.NewRouter(cfg.Output, publisher)
	if err != nil {
		log.Fatalf("Failed to create output router: %v", err)
	}
	router.Start()

	// 4. Write the run-provenance sidecar
	sidecar, err := metadata.NewSidecar(cfg.Output.MetadataDir, configPath)
	if err != nil {
		log.Fatalf("Failed to create metadata sidecar: %v", err)
	}
	if err := sidecar.WriteStart(time.Now()); err != nil {
		log.Printf("Warning: failed to write run metadata: %v", err)
	}

	// 5. Build and start the pipeline manager
	manager, err := engine.NewManager(cfg, publisher, router)
	if err != nil {
		log.Fatalf("Failed to create engine manager: %v", err)
	}
	manager.Start()

	// 6. Feed bus messages into the manager
	input := manager.InputChannel()
	handler := func(env *model.Envelope) {
		input <- env
	}
	for _, topic := range []model.Topic{model.TopicNewFlow, model.TopicNewNotice} {
		if err := subscriber.Subscribe(topic, handler); err != nil {
			log.Fatalf("Failed to subscribe to %s: %v", topic, err)
		}
	}

	// 7. Serve the read model for dashboards
	r := mux.NewRouter()
	api.NewHandler(manager.Store(), manager.Ledger(), manager.Tracker()).Register(r)
	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}
	go func() {
		log.Printf("Read-model server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// 8. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping engine...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Read-model server forced to shutdown: %v", err)
	}

	// Stop consuming from the bus before closing the manager's input.
	subscriber.Close()
	manager.Stop()
	router.Stop()
	if err := sidecar.WriteEnd(time.Now()); err != nil {
		log.Printf("Warning: failed to write run end date: %v", err)
	}
	log.Println("Shutdown complete.")
}
