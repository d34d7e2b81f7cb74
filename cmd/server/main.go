package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/config"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	port := flag.String("port", cfg.Server.Port, "Server port")
	host := flag.String("host", cfg.Server.Host, "Server host")
	cliAddr := flag.String("cli", cfg.Backend.Address, "CLI daemon gRPC address")
	statePath := flag.String("state", cfg.Storage.StatePath, "State file path")
	noProvision := flag.Bool("no-provision", !cfg.Provision.Enabled, "Skip first-start provisioning")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (console logs, debug level)")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Server.Host = *host
	cfg.Backend.Address = *cliAddr
	cfg.Storage.StatePath = *statePath
	cfg.Provision.Enabled = !*noProvision
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		_ = srv.Close()
		log.Fatalf("Server error: %v", err)
	}
}
