package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/internal/server"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Failed to read .env file")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/server.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}
	log.WithField("path", configPath).Info("Configuration loaded")
	log.Infof("Server will run on %s:%d", cfg.Server.Host, cfg.Server.Port)

	catalog, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("Failed to load item catalog: %v", err)
	}
	log.WithField("items", catalog.Len()).Info("Item catalog loaded")

	srv, err := server.New(cfg, catalog, log)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := srv.Start(addr); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		log.Infof("Received signal %v, shutting down...", sig)
	}

	if err := srv.Shutdown(); err != nil {
		log.WithError(err).Error("Error during shutdown")
	}

	log.Info("Server stopped")
}

func loadCatalog(path string) (*inventory.Registry, error) {
	if path == "" {
		return inventory.SampleCatalog(), nil
	}
	return inventory.LoadRegistryFile(path)
}
