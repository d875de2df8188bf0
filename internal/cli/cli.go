// Package cli parses the zapscand command line into an app.Config.
package cli

import (
	"errors"
	"fmt"

	"github.com/jessevdk/go-flags"

	"github.com/raysh454/zapscan/internal/app"
)

// CLIArgs are the command-line options of the service. Every option can
// also be supplied through its environment variable. Zero values leave
// the config file or built-in default in place.
type CLIArgs struct {
	ConfigFile string `long:"config-file" env:"ZAPSCAN_CONFIG_FILE" description:"Path to a YAML config file" value-name:"PATH"`

	Listen   string `long:"listen" env:"ZAPSCAN_LISTEN" description:"HTTP listen address" value-name:"ADDR"`
	LogLevel string `long:"log-level" env:"ZAPSCAN_LOG_LEVEL" description:"Log level" choice:"debug" choice:"info" choice:"warn" choice:"error"`

	ZapAPIURL      string `long:"zap-api-url" env:"ZAP_API_URL" description:"Base URL of the ZAP API" value-name:"URL"`
	ZapAPIKey      string `long:"zap-api-key" env:"ZAP_API_KEY" description:"ZAP API key" value-name:"KEY"`
	ZapContextName string `long:"zap-context-name" env:"ZAP_CONTEXT_NAME" description:"ZAP context scans are registered under" value-name:"NAME"`

	DBDriver string `long:"db-driver" env:"ZAPSCAN_DB_DRIVER" description:"Report store driver" choice:"sqlite" choice:"pgx" choice:"postgres"`
	DBDSN    string `long:"db-dsn" env:"ZAPSCAN_DB_DSN" description:"Report store data source name" value-name:"DSN"`

	Workers   int `long:"workers" env:"ZAPSCAN_WORKERS" description:"Number of scans run concurrently" value-name:"N"`
	QueueSize int `long:"queue-size" env:"ZAPSCAN_QUEUE_SIZE" description:"Number of scans that may wait for a worker" value-name:"N"`

	ContainerMode bool   `long:"container-mode" env:"ZAPSCAN_CONTAINER_MODE" description:"Rewrite localhost targets to the service alias"`
	ServiceAlias  string `long:"service-alias" env:"ZAPSCAN_SERVICE_ALIAS" description:"Hostname the scanner uses to reach this host" value-name:"HOST"`

	RecentLimit int `long:"recent-limit" env:"ZAPSCAN_RECENT_LIMIT" description:"Number of scans listed by /reports/recent" value-name:"N"`

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string `no-flag:"true"`
}

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by passing
// arbitrary slices. The function does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	var opts CLIArgs
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "zapscand"

	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", rest)
	}
	opts.RawArgs = args
	return &opts, nil
}

// IsHelp reports whether err is the request for usage output.
func IsHelp(err error) bool {
	var ferr *flags.Error
	return errors.As(err, &ferr) && ferr.Type == flags.ErrHelp
}

// Config layers the options over the defaults: built-in values first, then
// the config file, then flags and environment. The result is validated.
func (a *CLIArgs) Config() (*app.Config, error) {
	cfg := app.DefaultConfig()
	if a.ConfigFile != "" {
		if err := app.LoadFile(a.ConfigFile, cfg); err != nil {
			return nil, err
		}
	}

	setString(&cfg.ListenAddr, a.Listen)
	setString(&cfg.LogLevel, a.LogLevel)
	setString(&cfg.Zap.BaseURL, a.ZapAPIURL)
	setString(&cfg.Zap.APIKey, a.ZapAPIKey)
	setString(&cfg.Zap.ContextName, a.ZapContextName)
	setString(&cfg.Database.Driver, a.DBDriver)
	setString(&cfg.Database.DSN, a.DBDSN)
	setString(&cfg.ServiceAlias, a.ServiceAlias)
	setInt(&cfg.Workers, a.Workers)
	setInt(&cfg.QueueSize, a.QueueSize)
	setInt(&cfg.RecentLimit, a.RecentLimit)
	if a.ContainerMode {
		cfg.ContainerMode = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
