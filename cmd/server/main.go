package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/animestream/authcore/internal/api"
	"github.com/animestream/authcore/internal/config"
	"github.com/animestream/authcore/internal/logger"
	"github.com/animestream/authcore/internal/services"
	"github.com/common-nighthawk/go-figure"
	"github.com/gorilla/mux"
)

func main() {
	if err := run(); err != nil {
		log := logger.For(logger.APP)
		log.Fatal().Err(err).Msg("Server stopped with error")
	}
}

func run() error {
	config.Load()
	logger.Init()
	log := logger.For(logger.APP)

	displayAppname(config.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := services.InitializeServices(ctx, services.OptionsFromEnv())
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer svc.Close()

	server := &http.Server{
		Addr:              config.GetServerAddr(),
		Handler:           setupRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("env", config.GetEnv()).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func setupRouter(svc *services.Services) *mux.Router {
	return api.NewRouter(svc.GetController(), svc.GetGuard(), svc.GetMetrics())
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
