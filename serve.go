package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"
	"github.com/rs/zerolog/log"

	"github.com/insightdelivered/bank-statement-extractor/internal/api"
	"github.com/insightdelivered/bank-statement-extractor/internal/prom"
	"github.com/insightdelivered/bank-statement-extractor/internal/session"
)

type ServeCmd struct {
	ListenAddress string        `env:"LISTEN_ADDRESS" help:"${env} - Address to listen on for the API and telemetry" default:":8080"`
	MetricsPath   string        `env:"METRICS_PATH" help:"${env} - Path under which to expose metrics" default:"/metrics"`
	SessionTTL    time.Duration `env:"SESSION_TTL" help:"${env} - Idle time after which a session is dropped" default:"30m"`
}

func (c *ServeCmd) Run(g *Globals) error {
	stats := prom.NewStats()
	gw, err := g.gateway(stats)
	if err != nil {
		return err
	}
	store := session.NewStore(gw, session.Options{Timeout: g.OracleTimeout, Stats: stats}, c.SessionTTL)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		versioncollector.NewCollector(prom.Namespace),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prom.NewExporter(prom.Namespace, stats, store),
	)

	landing, err := web.NewLandingPage(web.LandingConfig{
		Name:        AppName,
		Description: AppDesc,
		Version:     version.Print(AppName),
		Links: []web.LandingLinks{
			{Address: c.MetricsPath, Text: "Metrics"},
			{Address: "/api/health", Text: "Health"},
			{Address: "/api/options", Text: "Banks and entities"},
		},
	})
	if err != nil {
		return err
	}

	app := api.NewApp(&api.Handler{
		Converter: gw,
		Sessions:  store,
		Version:   version.Version,
		Timeout:   g.OracleTimeout,
	}, api.Options{
		MetricsPath: c.MetricsPath,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Landing:     landing,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go store.Run(ctx)

	log.Info().
		Str("version", version.Info()).
		Str("address", c.ListenAddress).
		Str("model", g.OpenAIModel).
		Msg("Starting " + AppName)

	errc := make(chan error, 1)
	go func() { errc <- app.Listen(c.ListenAddress) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutdown Signal Received")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		return err
	}
	log.Info().Msg("Shutdown Complete; Exiting...")
	return nil
}
