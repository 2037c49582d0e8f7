package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	osignal "os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/failoverd/failoverd/pkg/action"
	"github.com/failoverd/failoverd/pkg/action/route53"
	"github.com/failoverd/failoverd/pkg/alert"
	"github.com/failoverd/failoverd/pkg/api"
	"github.com/failoverd/failoverd/pkg/confidence"
	"github.com/failoverd/failoverd/pkg/config"
	"github.com/failoverd/failoverd/pkg/coordinator"
	"github.com/failoverd/failoverd/pkg/engine"
	"github.com/failoverd/failoverd/pkg/failover"
	"github.com/failoverd/failoverd/pkg/health"
	"github.com/failoverd/failoverd/pkg/observability"
	"github.com/failoverd/failoverd/pkg/signal"
	"github.com/failoverd/failoverd/pkg/signal/redisprobe"
	"github.com/failoverd/failoverd/pkg/signal/zscore"
	"github.com/failoverd/failoverd/pkg/store"
	"github.com/failoverd/failoverd/pkg/version"
)

const (
	exitOK           = 0
	exitUsage        = 64
	exitConfigError  = 65
	exitRuntimeError = 66
	exitProbeError   = 67
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}

	switch args[0] {
	case "run":
		return commandRun(args[1:])
	case "validate-config":
		return commandValidate(args[1:])
	case "simulate":
		return commandSimulate(args[1:])
	case "version":
		fmt.Println(version.Version)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage()
		return exitUsage
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: failoverd <command> [options]
Commands:
  run                Start the failover engine daemon
  validate-config    Validate the configuration file
  simulate           Probe every endpoint once and show the evaluation
  version            Print build version
`)
}

func commandRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", config.DefaultConfigPath, "path to configuration file")
	dryRun := fs.Bool("dry-run", false, "log actions instead of applying them")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return exitConfigError
	}
	if *dryRun {
		cfg.DryRun = true
	}

	logger := observability.NewJSONLogger(os.Stdout, observability.WithNode(cfg.NodeName))

	ctx, stop := osignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, shutdown, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise engine: %v\n", err)
		return exitConfigError
	}
	defer shutdown()

	if err := eng.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "engine terminated: %v\n", err)
		return exitRuntimeError
	}
	return exitOK
}

// buildEngine assembles every collaborator from the configuration. The
// returned shutdown closes background servers and the etcd client.
func buildEngine(ctx context.Context, cfg *config.Config, logger observability.Logger) (*engine.Engine, func(), error) {
	var closers []func()
	shutdown := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var metrics observability.MetricsCollector = observability.NoopMetricsCollector{}
	if cfg.Metrics.Enabled {
		prom := observability.NewPrometheusCollector()
		metrics = prom
		closers = append(closers, serveHTTP(cfg.Metrics.Listen, prom.Handler(), logger, "metrics"))
	}

	var (
		coord      coordinator.Coordinator
		stateStore failover.StateStore
		decisions  failover.DecisionStore
	)
	if cfg.Coordinator.Enabled {
		client, err := newEtcdClient(cfg)
		if err != nil {
			shutdown()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })

		etcdCoord := coordinator.NewEtcd(client, cfg.Coordinator.LeaseKey, cfg.NodeName, cfg.LeaseTTL())
		coord = etcdCoord
		closers = append(closers, func() {
			resignCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = etcdCoord.Resign(resignCtx)
		})

		etcdStore := store.NewEtcd(client, cfg.Coordinator.EtcdNamespace, cfg.Failover.HistoryLimit)
		stateStore = etcdStore
		decisions = etcdStore
	} else {
		coord = coordinator.NewStatic()
		memory := store.NewMemory(cfg.Failover.HistoryLimit)
		stateStore = memory
		decisions = memory
	}

	collector, err := newCollector(cfg)
	if err != nil {
		shutdown()
		return nil, nil, err
	}

	weights := make(map[signal.SourceKind]float64, len(cfg.Health.Weights))
	for kind, weight := range cfg.Health.Weights {
		weights[signal.SourceKind(kind)] = weight
	}
	tracker := health.NewTracker(
		health.WithWindow(cfg.Health.WindowSize, cfg.ObservationWindow()),
		health.WithWeights(weights),
		health.WithThresholds(cfg.Health.DegradedThreshold, cfg.Health.FailingThreshold, cfg.Health.FailedThreshold),
	)

	machine := failover.NewMachine(stateStore, decisions, coord, initialState(cfg),
		failover.WithAuto(cfg.Failover.Auto),
		failover.WithThresholds(cfg.Failover.ConfidenceThreshold, cfg.Failover.ConsecutiveThreshold),
		failover.WithAdvisoryPath(cfg.Failover.AdvisoryConfidenceThreshold, cfg.Failover.AdvisoryConsecutiveThreshold, cfg.AdvisoryStaleHorizon()),
		failover.WithCooldown(cfg.Cooldown()),
	)

	dispatcher := alert.NewDispatcher(buildChannels(cfg),
		alert.WithLogger(logger),
		alert.WithMetrics(metrics),
		alert.WithMinIntervals(alertIntervals(cfg)),
	)

	dns, err := newDNSProvider(ctx, cfg, logger)
	if err != nil {
		shutdown()
		return nil, nil, err
	}
	retryMin, retryMax := cfg.RetryBounds()
	pipeline := action.NewPipeline(dns, dispatcher,
		action.WithTimeout(cfg.ActionTimeout()),
		action.WithRetries(cfg.Failover.RetryMaxAttempts, retryMin, retryMax),
		action.WithLogger(logger),
		action.WithMetrics(metrics),
	)

	opts := engine.Options{
		Config:      cfg,
		Collector:   collector,
		Scorer:      zscore.New(),
		Tracker:     tracker,
		Machine:     machine,
		Coordinator: coord,
		Pipeline:    pipeline,
		Alerts:      dispatcher,
		Decisions:   decisions,
		Logger:      logger,
		Metrics:     metrics,
	}
	if cfg.Sources.Impact != nil {
		impact, err := signal.NewHTTPImpactAnalyzer(signal.HTTPImpactAnalyzerOptions{
			Endpoint: cfg.Sources.Impact.Endpoint,
			APIKey:   cfg.Sources.Impact.APIKey,
			Timeout:  time.Duration(cfg.Sources.Impact.TimeoutSec) * time.Second,
		})
		if err != nil {
			shutdown()
			return nil, nil, err
		}
		opts.Impact = impact
	}
	if cfg.Sources.Advisory != nil {
		recommender, err := signal.NewHTTPRecommender(signal.HTTPRecommenderOptions{
			Endpoint: cfg.Sources.Advisory.Endpoint,
			APIKey:   cfg.Sources.Advisory.APIKey,
			Timeout:  time.Duration(cfg.Sources.Advisory.TimeoutSec) * time.Second,
		})
		if err != nil {
			shutdown()
			return nil, nil, err
		}
		opts.Recommender = recommender
	}

	eng, err := engine.New(opts)
	if err != nil {
		shutdown()
		return nil, nil, err
	}

	if cfg.API.Enabled {
		server := api.NewServer(eng, cfg.API.APIKey, cfg.NodeName, logger)
		closers = append(closers, serveHTTP(cfg.API.Listen, server.Handler(), logger, "api"))
	}

	return eng, shutdown, nil
}

func newCollector(cfg *config.Config) (signal.Collector, error) {
	endpoints := make(map[string][]redisprobe.Endpoint, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		eps := make([]redisprobe.Endpoint, 0, len(inst.Endpoints))
		for dc, ep := range inst.Endpoints {
			eps = append(eps, redisprobe.Endpoint{
				Datacenter: dc,
				Addr:       ep.Addr(),
				Password:   inst.Password,
			})
		}
		sort.Slice(eps, func(i, j int) bool { return eps[i].Datacenter < eps[j].Datacenter })
		endpoints[inst.InstanceID()] = eps
	}
	return redisprobe.New(redisprobe.Options{Endpoints: endpoints})
}

func initialState(cfg *config.Config) func(string) (failover.InstanceState, error) {
	return func(instanceID string) (failover.InstanceState, error) {
		for _, inst := range cfg.Instances {
			if inst.InstanceID() == instanceID {
				return failover.InstanceState{
					InstanceID: instanceID,
					ActiveDC:   inst.ActiveDC,
					State:      failover.StateStable,
				}, nil
			}
		}
		return failover.InstanceState{}, fmt.Errorf("%w: %s", failover.ErrUnknownInstance, instanceID)
	}
}

func buildChannels(cfg *config.Config) []alert.Channel {
	channels := make([]alert.Channel, 0, 3)
	if cfg.Alerts.Slack != nil {
		channels = append(channels, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Email != nil {
		email := cfg.Alerts.Email
		channels = append(channels, alert.NewEmail(alert.EmailOptions{
			Host:       email.Host,
			Port:       email.Port,
			From:       email.From,
			To:         email.To,
			Username:   email.Username,
			Password:   email.Password,
			TLSMode:    email.TLSMode,
			SkipVerify: email.SkipVerify,
		}))
	}
	if cfg.Alerts.PagerDuty != nil {
		channels = append(channels, alert.NewPagerDuty(cfg.Alerts.PagerDuty.ServiceKey, cfg.Alerts.PagerDuty.ClientURL))
	}
	return channels
}

func alertIntervals(cfg *config.Config) map[alert.Severity]time.Duration {
	intervals := make(map[alert.Severity]time.Duration, len(cfg.Alerts.MinIntervalSec))
	for severity, seconds := range cfg.Alerts.MinIntervalSec {
		intervals[alert.Severity(severity)] = time.Duration(seconds) * time.Second
	}
	return intervals
}

func newDNSProvider(ctx context.Context, cfg *config.Config, logger observability.Logger) (action.DNSProvider, error) {
	if cfg.DryRun || cfg.DNS.Provider == "none" || cfg.DNS.Provider == "" {
		return action.NewDryRunProvider(logger), nil
	}
	switch cfg.DNS.Provider {
	case "route53":
		return route53.New(ctx, route53.Options{
			Region:    cfg.DNS.Region,
			AccessKey: cfg.DNS.AccessKey,
			SecretKey: cfg.DNS.SecretKey,
			ZoneID:    cfg.DNS.ZoneID,
		})
	default:
		return nil, fmt.Errorf("unsupported dns provider %q", cfg.DNS.Provider)
	}
}

func newEtcdClient(cfg *config.Config) (*clientv3.Client, error) {
	clientCfg := clientv3.Config{
		Endpoints:   cfg.Coordinator.EtcdEndpoints,
		DialTimeout: cfg.EtcdDialTimeout(),
	}
	if tlsCfg := cfg.Coordinator.EtcdTLS; tlsCfg != nil && tlsCfg.Enabled {
		tlsConfig, err := buildTLSConfig(tlsCfg)
		if err != nil {
			return nil, err
		}
		clientCfg.TLS = tlsConfig
	}

	client, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to etcd: %w", err)
	}
	return client, nil
}

func buildTLSConfig(cfg *config.EtcdTLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load etcd client certificate: %w", err)
	}

	caPEM, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read etcd ca bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("etcd ca bundle %s contains no certificates", cfg.CAFile)
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		RootCAs:            pool,
		InsecureSkipVerify: cfg.Insecure,
	}, nil
}

// serveHTTP starts a background listener and returns its closer.
func serveHTTP(listen string, handler http.Handler, logger observability.Logger, name string) func() {
	server := &http.Server{
		Addr:         listen,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				_ = logger.Log(context.Background(), observability.Event{
					Level:     observability.LevelError,
					Component: name,
					Event:     "http_server_failed",
					Message:   err.Error(),
				})
			}
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func commandValidate(args []string) int {
	return commandValidateWithWriters(args, os.Stdout, os.Stderr)
}

func commandValidateWithWriters(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate-config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.DefaultConfigPath, "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if _, err := config.Load(*configPath); err != nil {
		fmt.Fprintf(stderr, "configuration invalid: %v\n", err)
		return exitConfigError
	}

	fmt.Fprintf(stdout, "configuration at %s is valid\n", *configPath)
	return exitOK
}

func commandSimulate(args []string) int {
	return commandSimulateWithWriters(args, os.Stdout, os.Stderr)
}

// commandSimulateWithWriters probes every configured endpoint once, feeds
// the observations through a fresh tracker, and prints the confidence
// evaluation without touching DNS or state.
func commandSimulateWithWriters(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.DefaultConfigPath, "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitConfigError
	}

	collector, err := newCollector(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "failed to construct collector: %v\n", err)
		return exitConfigError
	}

	weights := make(map[signal.SourceKind]float64, len(cfg.Health.Weights))
	for kind, weight := range cfg.Health.Weights {
		weights[signal.SourceKind(kind)] = weight
	}
	tracker := health.NewTracker(
		health.WithWeights(weights),
		health.WithThresholds(cfg.Health.DegradedThreshold, cfg.Health.FailingThreshold, cfg.Health.FailedThreshold),
	)

	fmt.Fprintf(stdout, "node %s configuration summary:\n", cfg.NodeName)
	fmt.Fprintf(stdout, "  instances: %d\n", len(cfg.Instances))
	fmt.Fprintf(stdout, "  dns provider: %s\n", cfg.DNS.Provider)
	if cfg.Coordinator.Enabled {
		fmt.Fprintf(stdout, "  etcd endpoints: %s\n", strings.Join(cfg.Coordinator.EtcdEndpoints, ", "))
	} else {
		fmt.Fprintln(stdout, "  coordination: standalone")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	probeFailed := false
	for _, inst := range cfg.Instances {
		id := inst.InstanceID()
		observations, err := collector.Collect(ctx, id)
		if err != nil {
			fmt.Fprintf(stderr, "probe for %s failed: %v\n", id, err)
			probeFailed = true
			continue
		}

		fmt.Fprintf(stdout, "instance %s (active %s):\n", id, inst.ActiveDC)
		for _, obs := range observations {
			if _, _, err := tracker.Ingest(obs); err != nil {
				fmt.Fprintf(stderr, "  observation for %s rejected: %v\n", obs.Datacenter, err)
				probeFailed = true
				continue
			}
		}
		for _, snap := range tracker.SnapshotInstance(id) {
			fmt.Fprintf(stdout, "  - %s => %s (severity %.2f)\n", snap.Datacenter, snap.Status, snap.Composite)
		}

		assessment := confidence.Evaluate(confidence.Input{
			InstanceID: id,
			ActiveDC:   inst.ActiveDC,
			Snapshots:  tracker.SnapshotInstance(id),
			Now:        time.Now(),
		}, confidence.Params{
			AdvisoryCeiling: cfg.Failover.AdvisoryCeiling,
			Stabilization:   cfg.Stabilization(),
		})
		if assessment.Eligible {
			fmt.Fprintf(stdout, "  would evaluate failover to %s at confidence %.2f\n", assessment.TargetDC, assessment.Confidence)
		} else {
			fmt.Fprintln(stdout, "  no failover candidate")
		}
		for _, reason := range assessment.Reasons {
			fmt.Fprintf(stdout, "      %s\n", reason)
		}
	}

	fmt.Fprintln(stdout, "no failover actions performed in simulation mode")
	if probeFailed {
		return exitProbeError
	}
	return exitOK
}
