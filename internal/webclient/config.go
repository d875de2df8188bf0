package webclient

import "time"

// Config tunes a NetHTTPClient. Zero values fall back to the defaults
// below.
type Config struct {
	Name         string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

const (
	DefaultTimeout      = 30 * time.Second
	DefaultUserAgent    = "zapscan/1.0"
	DefaultMaxBodyBytes = 32 << 20
)
