// Command zapstub serves a scripted fake of the ZAP JSON API so the service
// can be exercised without a real scanner.
// Usage: go run ./cmd/zapstub [--port 8090] [--alerts-base http://localhost:3000]
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/raysh454/zapscan/internal/zapstub"
)

type stubOpts struct {
	Port            int    `long:"port" default:"8090" description:"Port to listen on"`
	APIKey          string `long:"api-key" env:"ZAP_API_KEY" description:"API key required on every request"`
	AlertsBase      string `long:"alerts-base" default:"http://localhost:3000" description:"URL the canned alerts are reported against" value-name:"URL"`
	RejectImportURL bool   `long:"reject-import-url" description:"Fail openapi importUrl to force the importFile path"`
	RejectAPIScan   bool   `long:"reject-api-scan" description:"Fail policy API scans to force the per-endpoint path"`
}

func main() {
	var opts stubOpts
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
	if opts.Port < 1 || opts.Port > 65535 {
		log.Fatalf("Invalid port: %d", opts.Port)
	}

	cfg := zapstub.DefaultConfig()
	cfg.Port = opts.Port
	cfg.APIKey = opts.APIKey
	cfg.Alerts = zapstub.DemoAlerts(opts.AlertsBase)
	cfg.RejectImportURL = opts.RejectImportURL
	cfg.RejectAPIScan = opts.RejectAPIScan

	fmt.Println("===========================================")
	fmt.Println("   zapstub - fake ZAP API")
	fmt.Println("===========================================")
	fmt.Printf("Listening on :%d, alerts rooted at %s\n", cfg.Port, opts.AlertsBase)
	fmt.Println()

	if err := zapstub.New(cfg).Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
