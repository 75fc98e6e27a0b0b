package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/avollmer/fetch-aggregator/internal/config"
	"github.com/avollmer/fetch-aggregator/pkg/aggregator"
	"github.com/avollmer/fetch-aggregator/pkg/cache"
	"github.com/avollmer/fetch-aggregator/pkg/logging"
	"github.com/avollmer/fetch-aggregator/pkg/metrics"
	"github.com/avollmer/fetch-aggregator/pkg/transport"
)

var (
	version   = "1.0.0"
	commit    = ""
	buildDate = ""
)

// summary is the JSON document printed after a batch completes.
type summary struct {
	Successful map[string]json.RawMessage `json:"successful"`
	Failed     map[string]string          `json:"failed"`
	DurationMS int64                      `json:"duration_ms"`
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetchagg [endpoints...]",
		Short: "fetchagg: resilient concurrent endpoint fetcher",
		Long: "fetchagg fetches many HTTP endpoints concurrently behind a shared rate limit,\n" +
			"per-endpoint circuit breakers, and exponential-backoff retries, then prints an\n" +
			"aggregated JSON result. Endpoints come from arguments or the config file.",
		RunE:          runFetch,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("log", "l", "", "log level: debug, info, warn, error")
	cmd.Flags().Bool("pretty", false, "human-readable log output instead of JSON")
	cmd.Flags().Int("rate", 0, "max requests per rate window")
	cmd.Flags().Duration("window", 0, "rate limit window")
	cmd.Flags().Duration("timeout", 0, "per-attempt request timeout")
	cmd.Flags().Int("retries", 0, "total attempts per endpoint, including the first")
	cmd.Flags().Duration("retry-delay", 0, "base backoff before the first retry")
	cmd.Flags().Int("threshold", 0, "consecutive failures before a circuit opens")
	cmd.Flags().Duration("recovery", 0, "how long an open circuit waits before a probe")
	cmd.Flags().String("redis", "", "Redis address for the payload cache (empty disables)")
	cmd.Flags().Duration("cache-ttl", 0, "payload cache TTL")
	cmd.Flags().String("metrics", "", "Prometheus listen address, e.g. :9090 (empty disables)")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fetchagg %s (%s) %s\n", version, commit, buildDate)
		},
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cmd, cfg)

	pretty, _ := cmd.Flags().GetBool("pretty")
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: pretty,
		Output: os.Stderr,
	})

	endpoints := args
	if len(endpoints) == 0 {
		endpoints = cfg.Endpoints
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("no endpoints given (pass as arguments or set endpoints in config)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	client := transport.NewHTTPClient()
	defer client.Close()

	aggCfg := aggregator.Config{
		Transport:               client,
		RateLimit:               cfg.RateLimit,
		RateWindow:              cfg.RateWindow,
		RequestTimeout:          cfg.RequestTimeout,
		MaxRetryAttempts:        cfg.MaxRetryAttempts,
		RetryBaseDelay:          cfg.RetryBaseDelay,
		CircuitFailureThreshold: cfg.CircuitFailureThreshold,
		CircuitRecoveryTimeout:  cfg.CircuitRecoveryTimeout,
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		manager, err := cache.NewManager(rdb, cfg.CacheTTL)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		aggCfg.Cache = manager
	}

	agg, err := aggregator.New(aggCfg)
	if err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}

	result := agg.FetchAll(ctx, endpoints, func(p aggregator.Progress) {
		event := log.Info().
			Int("completed", p.Completed).
			Int("total", p.Total).
			Str("endpoint", p.Endpoint).
			Bool("succeeded", p.Succeeded)
		if p.Err != "" {
			event = event.Str("reason", p.Err)
		}
		event.Msg("Endpoint completed")
	})

	return printSummary(cmd.OutOrStdout(), result)
}

// applyFlags overrides config values with any flags the user set
// explicitly. Unset flags leave the config untouched.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log") {
		cfg.LogLevel, _ = flags.GetString("log")
	}
	if flags.Changed("rate") {
		cfg.RateLimit, _ = flags.GetInt("rate")
	}
	if flags.Changed("window") {
		cfg.RateWindow, _ = flags.GetDuration("window")
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("retries") {
		cfg.MaxRetryAttempts, _ = flags.GetInt("retries")
	}
	if flags.Changed("retry-delay") {
		cfg.RetryBaseDelay, _ = flags.GetDuration("retry-delay")
	}
	if flags.Changed("threshold") {
		cfg.CircuitFailureThreshold, _ = flags.GetInt("threshold")
	}
	if flags.Changed("recovery") {
		cfg.CircuitRecoveryTimeout, _ = flags.GetDuration("recovery")
	}
	if flags.Changed("redis") {
		cfg.RedisAddr, _ = flags.GetString("redis")
	}
	if flags.Changed("cache-ttl") {
		cfg.CacheTTL, _ = flags.GetDuration("cache-ttl")
	}
	if flags.Changed("metrics") {
		cfg.MetricsAddr, _ = flags.GetString("metrics")
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}

// printSummary writes the aggregated result as indented JSON. Payloads
// that are themselves valid JSON are embedded verbatim; anything else is
// emitted as a JSON string.
func printSummary(w io.Writer, result *aggregator.Result) error {
	out := summary{
		Successful: make(map[string]json.RawMessage, len(result.Successful)),
		Failed:     result.Failed,
		DurationMS: result.Duration.Milliseconds(),
	}
	for endpoint, payload := range result.Successful {
		if json.Valid(payload) {
			out.Successful[endpoint] = json.RawMessage(payload)
			continue
		}
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return fmt.Errorf("encode payload for %s: %w", endpoint, err)
		}
		out.Successful[endpoint] = quoted
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func main() {
	root := newRootCmd()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
