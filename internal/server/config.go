package server

import (
	"github.com/raysh454/zapscan/internal/logging"
	"github.com/raysh454/zapscan/internal/metrics"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	Logger logging.Logger

	// Metrics is served on /metrics. A nil value answers 404.
	Metrics *metrics.Metrics
}
