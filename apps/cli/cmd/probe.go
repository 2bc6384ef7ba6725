package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitwire/packages/cache"
	"github.com/abdul-hamid-achik/hitwire/packages/core/config"
	"github.com/abdul-hamid-achik/hitwire/packages/export/metrics"
	"github.com/abdul-hamid-achik/hitwire/packages/http"
	"github.com/abdul-hamid-achik/hitwire/packages/output"
	"github.com/abdul-hamid-achik/hitwire/packages/probe"
	"github.com/abdul-hamid-achik/hitwire/packages/recording"
)

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Send repeated requests and report latency",
	Long: `Send a request repeatedly through the resilient client and report
latency percentiles, status codes, error kinds and a distribution.

Examples:
  hitwire probe https://api.example.com/health
  hitwire probe https://api.example.com/health -n 100 --concurrency 10
  hitwire probe https://api.example.com/items -d 30s --rate 20 --retries 2
  hitwire probe https://api.example.com/health -n 50 --threshold "p95<200ms,errors<1%"
  hitwire probe https://api.example.com/items -X POST -H "Content-Type: application/json" --body '{"a":1}'
  hitwire probe https://api.example.com/health --record runs.db --metrics`,
	Args: cobra.ExactArgs(1),
	RunE: probeCommand,
}

var (
	probeRequestsFlag    int
	probeDurationFlag    time.Duration
	probeConcurrencyFlag int
	probeRateFlag        float64
	probeMethodFlag      string
	probeHeaderFlags     []string
	probeBodyFlag        string
	probeRetriesFlag     int
	probeTimeoutFlag     time.Duration
	probeCacheFlag       bool
	probeThresholdFlag   string
	probeRecordFlag      string
	probeMetricsFlag     bool
	probeMetricsAddrFlag string
	probeJSONFlag        bool
	probeProxyFlag       string
	probeInsecureFlag    bool
)

func init() {
	probeCmd.Flags().IntVarP(&probeRequestsFlag, "requests", "n", getEnvInt("HITWIRE_REQUESTS", 10), "Number of requests to send (env: HITWIRE_REQUESTS)")
	probeCmd.Flags().DurationVarP(&probeDurationFlag, "duration", "d", 0, "Send requests for this long instead of a fixed count (e.g., 30s, 5m)")
	probeCmd.Flags().IntVar(&probeConcurrencyFlag, "concurrency", getEnvInt("HITWIRE_CONCURRENCY", 1), "Maximum requests in flight (env: HITWIRE_CONCURRENCY)")
	probeCmd.Flags().Float64VarP(&probeRateFlag, "rate", "r", 0, "Requests started per second, 0 for as fast as possible")
	probeCmd.Flags().StringVarP(&probeMethodFlag, "method", "X", "GET", "HTTP method")
	probeCmd.Flags().StringArrayVarP(&probeHeaderFlags, "header", "H", nil, "Request header as \"Name: value\" (repeatable)")
	probeCmd.Flags().StringVar(&probeBodyFlag, "body", "", "Request body")
	probeCmd.Flags().IntVar(&probeRetriesFlag, "retries", -1, "Retries per request, overriding the config retry policy")
	probeCmd.Flags().DurationVar(&probeTimeoutFlag, "timeout", 0, "Per attempt timeout, overriding the config")
	probeCmd.Flags().BoolVar(&probeCacheFlag, "cache", false, "Serve repeated reads from the response cache")
	probeCmd.Flags().StringVar(&probeThresholdFlag, "threshold", "", "Pass/fail thresholds (e.g., \"p95<200ms,errors<0.1%\")")
	probeCmd.Flags().StringVar(&probeRecordFlag, "record", getEnvString("HITWIRE_RECORD", ""), "Record samples to a SQLite database (env: HITWIRE_RECORD)")
	probeCmd.Flags().BoolVar(&probeMetricsFlag, "metrics", false, "Print Prometheus metrics after the summary")
	probeCmd.Flags().StringVar(&probeMetricsAddrFlag, "metrics-addr", "", "Serve Prometheus metrics on this address until interrupted (e.g., :9090)")
	probeCmd.Flags().BoolVar(&probeJSONFlag, "json", false, "Output results as JSON")
	probeCmd.Flags().StringVar(&probeProxyFlag, "proxy", getEnvString("HITWIRE_PROXY", ""), "Proxy URL for HTTP requests (env: HITWIRE_PROXY)")
	probeCmd.Flags().BoolVarP(&probeInsecureFlag, "insecure", "k", getEnvBool("HITWIRE_INSECURE", false), "Disable SSL certificate validation (env: HITWIRE_INSECURE)")
}

func probeCommand(cmd *cobra.Command, args []string) error {
	target := args[0]
	if err := http.ValidateURL(target); err != nil {
		return exitWith(ExitUsageError, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	probeCfg, err := buildProbeConfig(cmd)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	req, err := buildProbeRequest(target)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	client, responses, err := buildProbeClient(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	collector.AddTracker(target, client.Tracker())
	if responses != nil {
		collector.AddCache("responses", responses)
	}

	var promOpts []metrics.PrometheusOption
	if probeMetricsAddrFlag != "" {
		promOpts = append(promOpts, metrics.WithPrometheusHTTP(probeMetricsAddrFlag), metrics.WithRuntimeMetrics())
	}
	exporter, err := metrics.NewPrometheusExporter(collector, promOpts...)
	if err != nil {
		return err
	}
	defer exporter.Close()
	if probeMetricsAddrFlag != "" {
		addr, err := exporter.Start()
		if err != nil {
			return exitWith(ExitNetworkError, err)
		}
		fmt.Fprintf(os.Stderr, "Serving metrics on http://%s/metrics\n", addr)
	}

	var opts []probe.RunnerOption
	if logger := newLogger(cfg); logger != nil {
		opts = append(opts, probe.WithLogger(logger))
	}
	runner, err := probe.NewRunner(probeCfg, client, opts...)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	reporter := output.NewReporter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithNoColor(cfg.GetNoColor()),
		output.WithVerbose(cfg.GetVerbose()),
	)
	if !probeJSONFlag {
		reporter.Header(version, fmt.Sprintf("Probing %s %s", req.Method, target))
	}

	result, err := runner.Run(ctx, req)
	if err != nil && result == nil {
		return exitWith(ExitNetworkError, err)
	}

	summary := output.ProbeSummary{
		Method:       req.Method,
		Target:       target,
		Duration:     result.Duration,
		Stats:        result.Stats,
		Distribution: result.Distribution,
		Attempts:     result.Attempts,
		RPS:          result.RPS,
		Thresholds:   result.Thresholds,
	}
	if len(result.Errors) > 0 {
		summary.Errors = make(map[string]int, len(result.Errors))
		for kind, n := range result.Errors {
			summary.Errors[string(kind)] = n
		}
	}
	if responses != nil {
		st := responses.Stats()
		summary.Cache = &st
	}

	if probeRecordFlag != "" {
		runID, err := recordProbe(context.Background(), probeRecordFlag, target, result)
		if err != nil {
			reporter.Error("recording failed: %v", err)
		} else {
			summary.RunID = runID
		}
	}

	if probeJSONFlag {
		if err := reporter.JSONProbe(summary); err != nil {
			return err
		}
	} else {
		reporter.Probe(summary)
	}

	if probeMetricsFlag {
		if err := exporter.WriteTo(cmd.OutOrStdout()); err != nil {
			return err
		}
	}

	if probeMetricsAddrFlag != "" && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "Probe finished; press Ctrl+C to stop serving metrics")
		<-ctx.Done()
	}

	if !result.Passed() {
		return exitWith(ExitThresholdFailure, nil)
	}
	if result.Stats.Count > 0 && result.Stats.SuccessCount == 0 {
		return exitWith(ExitNetworkError, nil)
	}
	return nil
}

func buildProbeConfig(cmd *cobra.Command) (probe.Config, error) {
	cfg := probe.DefaultConfig()
	cfg.Requests = probeRequestsFlag
	cfg.Concurrency = probeConcurrencyFlag
	cfg.Rate = probeRateFlag

	if probeDurationFlag > 0 {
		cfg.Duration = probeDurationFlag
		// a duration alone runs until it elapses
		if !cmd.Flags().Changed("requests") {
			cfg.Requests = 0
		}
	}

	if probeThresholdFlag != "" {
		t, err := probe.ParseThresholds(probeThresholdFlag)
		if err != nil {
			return cfg, fmt.Errorf("invalid thresholds: %w", err)
		}
		cfg.Thresholds = t
	}

	return cfg, cfg.Validate()
}

func buildProbeRequest(target string) (*http.Request, error) {
	req := http.NewRequest(strings.ToUpper(probeMethodFlag), target)
	for _, h := range probeHeaderFlags {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: value\"", h)
		}
		req.SetHeader(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if probeBodyFlag != "" {
		req.SetBody(probeBodyFlag)
	}
	return req, nil
}

// buildProbeClient wires the config and flags into a client. The returned
// cache is nil when caching is off.
func buildProbeClient(cfg *config.Config) (*http.Client, *cache.Cache[*http.Response], error) {
	policy, err := cfg.RetryPolicy()
	if err != nil {
		return nil, nil, exitWith(ExitConfigError, err)
	}
	if probeRetriesFlag >= 0 {
		policy.MaxAttempts = probeRetriesFlag + 1
	}

	timeout := cfg.RequestTimeout()
	if probeTimeoutFlag > 0 {
		timeout = probeTimeoutFlag
	}

	clientOpts := []http.ClientOption{
		http.WithRetryPolicy(policy),
		http.WithDefaultHeaders(cfg.Headers),
		http.WithValidateSSL(!probeInsecureFlag),
	}
	if timeout > 0 {
		clientOpts = append(clientOpts, http.WithTimeout(timeout))
	}
	if probeProxyFlag != "" {
		clientOpts = append(clientOpts, http.WithProxy(probeProxyFlag))
	}
	if cfg.RateLimit.RPS > 0 {
		clientOpts = append(clientOpts, http.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	if logger := newLogger(cfg); logger != nil {
		clientOpts = append(clientOpts, http.WithLogger(logger))
	}

	var responses *cache.Cache[*http.Response]
	capacity := cfg.CacheCapacity()
	if probeCacheFlag && capacity == 0 {
		capacity = config.DefaultConfig().Cache.Capacity
	}
	if capacity > 0 {
		responses, err = cache.New[*http.Response](capacity)
		if err != nil {
			return nil, nil, exitWith(ExitConfigError, err)
		}
		clientOpts = append(clientOpts, http.WithCache(responses, cfg.CacheTTL()))
	}

	return http.NewClient(clientOpts...), responses, nil
}

func recordProbe(ctx context.Context, dsn, target string, result *probe.Result) (string, error) {
	store, err := recording.Open(dsn)
	if err != nil {
		return "", err
	}
	defer store.Close()

	run, err := store.CreateRun(ctx, recording.KindProbe, target)
	if err != nil {
		return "", err
	}
	if err := store.SaveSamples(ctx, run.ID, result.Samples); err != nil {
		return "", err
	}
	if err := store.FinishRun(ctx, run.ID); err != nil {
		return "", err
	}
	return run.ID, nil
}
