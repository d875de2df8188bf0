package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseArgs_FlagsOverrideDefaults(t *testing.T) {
	args := []string{
		"--zap-api-url", "http://zap:8080",
		"--zap-api-key", "secret",
		"--listen", ":9000",
		"--workers", "8",
		"--db-driver", "pgx",
		"--db-dsn", "postgres://scan@db/scans",
		"--container-mode",
	}
	a, err := ParseArgs(args)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	cfg, err := a.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}

	if cfg.Zap.BaseURL != "http://zap:8080" || cfg.Zap.APIKey != "secret" {
		t.Errorf("zap = %+v", cfg.Zap)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("listen = %q", cfg.ListenAddr)
	}
	if cfg.Workers != 8 {
		t.Errorf("workers = %d", cfg.Workers)
	}
	if cfg.QueueSize != 64 {
		t.Errorf("queue size should keep its default, got %d", cfg.QueueSize)
	}
	if cfg.Database.Driver != "pgx" || cfg.Database.DSN != "postgres://scan@db/scans" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if !cfg.ContainerMode || cfg.ServiceAlias != "host.docker.internal" {
		t.Errorf("container mode = %v alias = %q", cfg.ContainerMode, cfg.ServiceAlias)
	}
	if len(a.RawArgs) != len(args) {
		t.Errorf("raw args not recorded")
	}
}

func TestParseArgs_Environment(t *testing.T) {
	t.Setenv("ZAP_API_URL", "http://zap-env:8080")
	t.Setenv("ZAP_API_KEY", "from-env")

	a, err := ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	cfg, err := a.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.Zap.BaseURL != "http://zap-env:8080" || cfg.Zap.APIKey != "from-env" {
		t.Errorf("zap = %+v", cfg.Zap)
	}
}

func TestParseArgs_ConfigFileThenFlags(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "zapscan.yml")
	yml := "listen: \":4000\"\nzap:\n  url: http://zap-file:8080\n  api_key: file-key\nworkers: 2\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	a, err := ParseArgs([]string{"--config-file", path, "--workers", "6"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	cfg, err := a.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.ListenAddr != ":4000" {
		t.Errorf("listen from file = %q", cfg.ListenAddr)
	}
	if cfg.Zap.APIKey != "file-key" {
		t.Errorf("api key from file = %q", cfg.Zap.APIKey)
	}
	if cfg.Workers != 6 {
		t.Errorf("flag should override file, workers = %d", cfg.Workers)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	t.Parallel()

	if _, err := ParseArgs([]string{"--workers", "many"}); err == nil {
		t.Error("expected error for non-numeric workers")
	}
	if _, err := ParseArgs([]string{"--log-level", "loud"}); err == nil {
		t.Error("expected error for invalid log level")
	}
	if _, err := ParseArgs([]string{"stray"}); err == nil {
		t.Error("expected error for positional argument")
	}

	_, err := ParseArgs([]string{"--help"})
	if !IsHelp(err) {
		t.Errorf("expected help error, got %v", err)
	}
}

func TestConfig_RequiresScannerSettings(t *testing.T) {
	t.Parallel()
	a := &CLIArgs{}
	if _, err := a.Config(); err == nil {
		t.Fatal("expected validation error without zap url and key")
	}
}

func TestConfig_MissingConfigFile(t *testing.T) {
	t.Parallel()
	a := &CLIArgs{ConfigFile: filepath.Join(t.TempDir(), "absent.yml"), ZapAPIURL: "http://zap", ZapAPIKey: "k"}
	if _, err := a.Config(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
