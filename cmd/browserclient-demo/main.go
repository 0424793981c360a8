// browserclient-demo drives a single browser-emulating Client against a
// target URL and prints a periodic metrics summary.
//
// Startup sequence:
//  1. Load configuration (JSON file or defaults).
//  2. Initialise logger and metrics.
//  3. Build a Client from the configuration (timeouts, retry policy,
//     proxy file).
//  4. Poll the target URL on an interval, logging each outcome.
//  5. Block until OS signals SIGINT or SIGTERM, then perform a clean
//     shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firasghr/browserclient/client"
	"github.com/firasghr/browserclient/config"
	"github.com/firasghr/browserclient/logger"
	"github.com/firasghr/browserclient/middleware"
	"github.com/firasghr/browserclient/proxymatch"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file (optional; uses defaults if omitted)")
	targetURL := flag.String("url", "", "URL to poll on an interval (required)")
	interval := flag.Duration("interval", 10*time.Second, "Polling interval")
	flag.Parse()

	log := logger.New(logger.LevelInfo)
	log.Info("browserclient-demo starting up")

	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			log.Errorf("failed to load config from %q: %v", *configFile, err)
			os.Exit(1)
		}
		log.Infof("configuration loaded from %q", *configFile)
	} else {
		cfg = config.DefaultConfig()
		log.Info("using default configuration")
	}

	if *targetURL == "" {
		log.Error("-url is required")
		os.Exit(1)
	}

	builder := client.NewClientBuilder().
		WithTimeouts(cfg.RequestTimeout, cfg.BodyReadTimeout).
		WithRetry(middleware.RetryOptions{
			Budget:                middleware.NewBudget(cfg.MaxRetries, 0.1),
			MaxAttemptsPerRequest: cfg.MaxRetries,
		})
	builder.Logger = log

	if cfg.ProxyFile != "" {
		matcher, err := proxymatch.FromFile(cfg.ProxyFile)
		if err != nil {
			log.Errorf("failed to load proxies from %q: %v", cfg.ProxyFile, err)
			os.Exit(1)
		}
		builder = builder.WithProxy(matcher)
		log.Infof("loaded proxy rules from %q", cfg.ProxyFile)
	}

	c, err := builder.Build()
	if err != nil {
		log.Errorf("failed to build client: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poll := func() {
		resp, err := c.Get(ctx, *targetURL)
		if err != nil {
			log.Errorf("request error: %v", err)
			return
		}
		defer resp.Close()
		log.Infof("%s -> %d", *targetURL, resp.Status)
	}

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		poll()
		for range ticker.C {
			poll()
		}
	}()

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for range ticker.C {
			total, success, failed, retries := c.Metrics().Snapshot()
			log.Infof("metrics – total: %d | success: %d | failed: %d | retries: %d | rps: %.1f",
				total, success, failed, retries, c.Metrics().RequestsPerSecond())
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Println() // newline after ^C
	log.Infof("received signal %s; shutting down", sig)
	cancel()

	total, success, failed, retries := c.Metrics().Snapshot()
	log.Infof("final metrics – total: %d | success: %d | failed: %d | retries: %d",
		total, success, failed, retries)
	log.Info("browserclient-demo shut down cleanly")
}
