package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/techscaniq/diligence/internal/infrastructure/config"
	"github.com/techscaniq/diligence/internal/infrastructure/logging"
	"github.com/techscaniq/diligence/internal/server"
)

func main() {
	port := flag.String("port", "", "Server port (overrides PORT)")
	dev := flag.Bool("dev", false, "Development mode: colored logs, debug level")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Service:     "diligence",
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		// No logger yet; nothing better to do
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	srv, err := server.NewServer(cfg, log)
	if err != nil {
		log.Fatal("failed to create server", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("shutdown error", zap.Error(err))
		}
	case err := <-errChan:
		if err != nil {
			log.Fatal("server error", zap.Error(err))
		}
	}
}
