// Package config provides production-grade configuration management for
// browserclient. It supports JSON-based configuration loading with safe
// defaults optimized for high concurrency.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds all tunable parameters a ClientBuilder can be seeded from.
// The struct is designed to be loaded once at startup and then shared across
// goroutines as a read-only value, making it inherently thread-safe after
// initialization. Fields cover pool limits, timeouts, retry, and the
// emulation profile selection.
type Config struct {
	// EmulationProfile selects the named browser profile (e.g.
	// "chrome-120", "firefox-121") a ClientBuilder should apply.
	EmulationProfile string `json:"emulation_profile"`

	// RequestTimeout is the end-to-end timeout for a single HTTP request,
	// including connection setup, TLS handshake, sending the request body,
	// and reading the full response. Use time.Duration JSON encoding
	// (e.g. "30s", "1m").
	RequestTimeout time.Duration `json:"request_timeout"`

	// BodyReadTimeout bounds how long reading the response body may take
	// once headers have arrived, independent of RequestTimeout.
	BodyReadTimeout time.Duration `json:"body_read_timeout"`

	// MaxRetries is the number of times a failed request will be retried
	// before the retry budget marks it as a permanent failure.
	MaxRetries int `json:"max_retries"`

	// ProxyFile is the path to a newline-delimited file containing proxy
	// addresses (host:port or scheme://host:port). Leave empty to run
	// without proxies.
	ProxyFile string `json:"proxy_file"`

	// MaxConnsPerKey caps how many connections pool.Pool leases to a single
	// pool.Key (scheme+host+port+ALPN+fingerprint) at once.
	MaxConnsPerKey int `json:"max_conns_per_key"`

	// MaxIdleConns is the total maximum number of idle (keep-alive)
	// connections the pool tracks across all keys.
	MaxIdleConns int `json:"max_idle_conns"`

	// IdleConnTimeout is how long a pooled connection may sit unused before
	// the pool evicts it.
	IdleConnTimeout time.Duration `json:"idle_conn_timeout"`
}

// LoadConfig reads a JSON file at filename and deserialises it into a Config.
// It returns an error if the file cannot be opened or if the JSON is
// malformed. The returned *Config is ready to use; zero-value fields retain
// Go's zero values, so callers should validate required fields after
// loading.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 – filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	var cfg Config
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields() // catch typos in config files early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	return &cfg, nil
}

// DefaultConfig returns a *Config pre-filled with production-sensible
// defaults. Callers are free to mutate the returned struct before passing it
// to a ClientBuilder; each call returns a fresh independent copy.
func DefaultConfig() *Config {
	return &Config{
		EmulationProfile: "chrome-120",
		RequestTimeout:   30 * time.Second,
		BodyReadTimeout:  60 * time.Second,
		MaxRetries:       3,
		ProxyFile:        "",
		MaxConnsPerKey:   6,
		MaxIdleConns:     500,
		IdleConnTimeout:  90 * time.Second,
	}
}
