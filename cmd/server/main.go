// Command server runs a stand-in detection service: an HTTP pub/sub bridge
// that evaluates published metrics reports and queues the verdicts for the
// agents to poll.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/devicewatch-io/defender-agent/internal/hub"
	"github.com/devicewatch-io/defender-agent/internal/middleware"
)

func main() {
	if err := Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to read configuration")
	}

	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("level", config.LogLevel).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	broker := hub.NewBroker()
	evaluator := hub.NewEvaluator(broker, time.Duration(config.MinInterval)*time.Second)
	router := hub.NewRouter(hub.NewHandler(broker, evaluator),
		middleware.RequestLogger,
		middleware.TrustedSubnet(config.TrustedSubnet),
		// The signature covers the uncompressed payload, so decompression
		// must run first.
		middleware.GzipRequest,
		middleware.SignatureValidation(config.Key),
	)

	server := &http.Server{
		Addr:    config.Address,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	log.Info().Str("address", config.Address).Int("min_interval", config.MinInterval).Msg("server started")

	select {
	case err := <-errc:
		log.Fatal().Err(err).Msg("server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error().Err(err).Msg("shutdown failed")
	}
	log.Info().Msg("server stopped")
}
