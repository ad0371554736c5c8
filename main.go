package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/common/version"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/insightdelivered/bank-statement-extractor/internal/config"
	"github.com/insightdelivered/bank-statement-extractor/internal/gateway"
	"github.com/insightdelivered/bank-statement-extractor/internal/oracle"
	"github.com/insightdelivered/bank-statement-extractor/internal/prom"
)

const AppName = "bank-statement-extractor"
const AppDesc = "Extracts the transactions of Colombian bank statements (pasted text or PDF) with a generative model and exports them as pipe-delimited CSV."

// Globals are the flags shared by every command.
type Globals struct {
	LogLevel  string           `env:"LOG_LEVEL" help:"${env} - Log level" enum:"trace,debug,info,warn,error" default:"info"`
	LogFormat string           `env:"LOG_FORMAT" help:"${env} - Log output format" enum:"json,console" default:"json"`
	Version   kong.VersionFlag `help:"Print version and exit"`

	OpenAIAPIKey  string        `env:"OPENAI_API_KEY" help:"${env} - API Key for OpenAI or any OpenAI-compatible endpoint"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL" help:"${env} - Base URL of an OpenAI-compatible endpoint"`
	OpenAIModel   string        `env:"OPENAI_MODEL" help:"${env} - Model used for extraction" default:"gpt-4o-mini"`
	AzureAPIKey   string        `env:"AZURE_API_KEY" help:"${env} - API Key for Azure OpenAI. Takes precedence over OPENAI_API_KEY"`
	AzureEndpoint string        `env:"AZURE_ENDPOINT" help:"${env} - Azure OpenAI Endpoint"`
	OracleTimeout time.Duration `env:"ORACLE_TIMEOUT" help:"${env} - Maximum duration of one extraction" default:"2m"`
	BankProfiles  string        `env:"BANK_PROFILES" help:"${env} - Path to a YAML file overriding per-bank number formats and prompt notes"`
}

var cli struct {
	Globals

	Serve    ServeCmd    `cmd:"" help:"Run the HTTP API."`
	Convert  ConvertCmd  `cmd:"" help:"Convert one statement to CSV."`
	Profiles ProfilesCmd `cmd:"" help:"Write the effective bank profiles to a YAML file."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name(AppName),
		kong.Description(AppDesc),
		kong.UsageOnError(),
		kong.Vars{"version": version.Print(AppName)},
	)
	if err := cli.Globals.setupLogging(); err != nil {
		ctx.FatalIfErrorf(err)
	}
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

func (g *Globals) setupLogging() error {
	level, err := zerolog.ParseLevel(g.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if g.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	return nil
}

// gateway wires the oracle client, bank profiles, and stats together.
func (g *Globals) gateway(stats *prom.Stats) (*gateway.Gateway, error) {
	profiles, err := config.LoadProfiles(g.BankProfiles)
	if err != nil {
		return nil, err
	}
	client, err := oracle.New(oracle.Config{
		APIKey:        g.OpenAIAPIKey,
		BaseURL:       g.OpenAIBaseURL,
		Model:         g.OpenAIModel,
		AzureAPIKey:   g.AzureAPIKey,
		AzureEndpoint: g.AzureEndpoint,
	}, profiles, stats)
	if err != nil {
		return nil, err
	}
	return gateway.New(client, profiles, stats), nil
}
