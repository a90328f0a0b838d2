package main

import (
	"NetReplay/internal/config"
	"NetReplay/internal/engine/manager"
	"NetReplay/internal/model"
	"NetReplay/internal/replay"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	log.Println("Starting nr-engine...")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	mgr, err := manager.NewManager(cfg)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	mgr.Start()

	sub, err := replay.NewSubscriber(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}

	input := mgr.InputChannel()
	err = sub.Start(func(info *model.PacketInfo) {
		input <- info
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping engine...")
	// Drain the subscriber first: Close returns only after in-flight
	// handlers are done, so no handler can send on the input channel once
	// the manager closes it.
	sub.Close()
	mgr.Stop()
	log.Println("Shutdown complete.")
}
