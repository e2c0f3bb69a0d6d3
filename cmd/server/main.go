package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/sse-chat/internal/broadcast"
	"github.com/Tyrowin/sse-chat/internal/config"
	"github.com/Tyrowin/sse-chat/internal/logger"
	"github.com/Tyrowin/sse-chat/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log, "sse-chat")

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Request contexts derive from baseCtx; cancelling it ends open streams.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	broadcaster := broadcast.NewBroadcaster(log)
	handlers := server.NewHandlers(broadcaster, cfg, log)
	httpServer := server.CreateServer(baseCtx, cfg.Addr(), server.SetupRoutes(handlers))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer, log)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("server stopped")
			os.Exit(1)
		}
		return
	case <-signalCtx.Done():
		log.Info().Msg("shutdown signal received")
	}

	cancelRequests()
	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log); err != nil {
		os.Exit(1)
	}
}
