// Command agent runs the device security telemetry agent: it samples the
// device's TCP connection state on a fixed period and publishes signed
// metrics reports to the detection service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/devicewatch-io/defender-agent/internal/agent"
	"github.com/devicewatch-io/defender-agent/internal/audit"
	"github.com/devicewatch-io/defender-agent/internal/codec"
	"github.com/devicewatch-io/defender-agent/internal/netstat"
	"github.com/devicewatch-io/defender-agent/internal/transport"
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

	thingName := config.ThingName
	if thingName == "" {
		thingName, err = os.Hostname()
		if err != nil {
			log.Fatal().Err(err).Msg("thing name not configured and hostname unavailable")
		}
	}

	wireCodec, err := codec.ByFormat(config.Format)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid report format")
	}

	var opts []agent.Option
	if config.AuditLog != "" || config.AuditURL != "" {
		subject := audit.NewSubject()
		if config.AuditLog != "" {
			subject.Register(audit.NewFileObserver(config.AuditLog))
		}
		if config.AuditURL != "" {
			subject.Register(audit.NewHTTPObserver(config.AuditURL))
		}
		opts = append(opts, agent.WithAudit(subject))
	}

	a := agent.New(netstat.NewSystemSource(), wireCodec, transport.NewHTTPDialer(), opts...)

	var flags agent.MetricsFlags
	if config.ReportTotal {
		flags |= agent.FlagEstablishedTotal
	}
	if config.ReportConnections {
		flags |= agent.FlagEstablishedRemoteAddr
	}
	if err := a.SetMetrics(agent.GroupTCPConnections, flags); err != nil {
		log.Fatal().Err(err).Msg("failed to configure metrics")
	}
	if err := a.SetPeriod(uint32(config.Period)); err != nil {
		log.Fatal().Err(err).Int("period", config.Period).Msg("invalid reporting period")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = a.Start(agent.StartConfig{
		Endpoint:  config.Endpoint,
		ThingName: thingName,
		Credentials: transport.Credentials{
			Username:    config.Username,
			Password:    config.Password,
			TLSCertFile: config.CryptoCert,
			TLSKeyFile:  config.CryptoKey,
			CACertFile:  config.CACert,
			SigningKey:  config.Key,
		},
		Callback: func(event agent.Event) {
			logEvent(event)
			if event.Type == agent.EventNetworkConnectionFailed {
				stop()
			}
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start agent")
	}

	log.Info().
		Str("endpoint", config.Endpoint).
		Str("thing", thingName).
		Str("format", wireCodec.Format()).
		Int("period", config.Period).
		Msg("agent started")

	<-ctx.Done()

	a.Stop()
	log.Info().Msg("agent stopped")
}

func logEvent(event agent.Event) {
	switch event.Type {
	case agent.EventMetricsAccepted:
		log.Info().Msg("report accepted")
	case agent.EventMetricsRejected:
		log.Warn().Bool("throttled", event.Throttled).Msg("report rejected")
	case agent.EventNetworkConnectionFailed:
		log.Error().Msg("connection to the detection service failed")
	case agent.EventPublishFailed:
		log.Warn().Msg("report publish failed")
	case agent.EventInvalidResponse:
		log.Warn().Msg("malformed response from the detection service")
	}
}
