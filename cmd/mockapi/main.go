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

	"github.com/animestream/authcore/internal/config"
	"github.com/animestream/authcore/internal/logger"
	"github.com/animestream/authcore/internal/mockapi"
	"github.com/common-nighthawk/go-figure"
)

func main() {
	config.Load()
	logger.Init()
	log := logger.For(logger.MOCKAPI)

	figure.NewFigure("mockapi", "cybermedium", true).Print()
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := mockapi.OptionsFromEnv()
	server := &http.Server{
		Addr:              config.GetMockAPIAddr(),
		Handler:           mockapi.NewServer(opts).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("envelope", opts.Envelope).
			Str("case", opts.Case).
			Bool("rotate_refresh", opts.RotateRefresh).
			Msg("Reference API starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}
