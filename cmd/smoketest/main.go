package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mailoreply/smoketest/internal/checks"
	"github.com/mailoreply/smoketest/internal/config"
	"github.com/mailoreply/smoketest/internal/report"
	"github.com/mailoreply/smoketest/internal/scanner"
	"github.com/mailoreply/smoketest/internal/scanner/clients/baas"
	"github.com/mailoreply/smoketest/internal/scanner/clients/gohttp"
	"github.com/mailoreply/smoketest/internal/scanner/clients/postgres"
	"github.com/mailoreply/smoketest/internal/store"
	"github.com/mailoreply/smoketest/internal/version"
)

func main() {
	logger := logrus.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-shutdown
		logger.WithField("signal", sig).Info("run canceled, remaining checks will not run")
		cancel()
	}()

	args, err := parseFlags()
	if err != nil {
		logger.WithError(err).Error("couldn't parse flags")
		os.Exit(1)
	}

	logger.SetLevel(logLevel)
	if logFormat == jsonLogFormat {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if quiet {
		logger.SetOutput(io.Discard)
	}

	cfg, err := loadConfig(flag.CommandLine, viper.GetViper(), configPath)
	if err != nil {
		logger.WithError(err).Error("couldn't load config")
		os.Exit(1)
	}

	cfg.Args = args

	if err = cfg.Validate(); err != nil {
		logger.WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	passed, err := run(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("caught error in main function")
		os.Exit(1)
	}

	if !passed {
		os.Exit(1)
	}
}

// run executes the suite and reports whether every check passed.
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (bool, error) {
	logger.WithField("version", version.Version).Info("smoketest started")

	httpClient, err := gohttp.NewClient(cfg)
	if err != nil {
		return false, errors.Wrap(err, "couldn't create HTTP client")
	}

	deps := &checks.Deps{
		Config: cfg,
		Logger: logger,
		HTTP:   httpClient,
	}

	s := scanner.New(logger, cfg, report.Trace)

	if cfg.PlatformEnabled() {
		deps.BaaS = baas.NewClient(httpClient, cfg.BaaSURL, cfg.BaaSAnonKey, cfg.BaaSServiceKey)
	}

	if cfg.DatabaseEnabled() {
		pg := postgres.New(cfg.DatabaseURL(), cfg.DBMaxConns, logger)
		s.Use(pg)
		deps.Store = store.NewPGStore(pg)
	}

	suite, err := checks.Build(deps)
	if err != nil {
		return false, errors.Wrap(err, "couldn't build the check suite")
	}

	if err = s.Register(suite...); err != nil {
		return false, errors.Wrap(err, "couldn't register checks")
	}

	logger.WithField("checks", len(s.Checks())).Info("Checks registered")

	results, err := s.Run(ctx)
	if errors.Is(err, scanner.ErrNoChecks) {
		return false, errors.New("nothing to run: configure at least baasURL/baasAnonKey, appURL, database access or sourceRoot")
	}
	if err != nil {
		return false, errors.Wrap(err, "error occurred while running checks")
	}

	reportTime := time.Now()
	reportName := reportTime.Format(cfg.ReportName)
	reportFile := filepath.Join(cfg.ReportPath, reportName)

	stat := results.GetStatistics()

	consoleFormat := cfg.ConsoleFormat
	if consoleFormat == "" {
		consoleFormat = textLogFormat
	}

	err = report.RenderConsoleReport(stat, reportTime, target(cfg), cfg.Args, consoleFormat)
	if err != nil {
		return false, err
	}

	if report.IsNoneReportFormat(cfg.ReportFormat) {
		return stat.AllPassed(), nil
	}

	reportFiles, err := report.ExportFullReport(
		results, stat, reportFile, reportTime,
		target(cfg), cfg.Args, cfg.ReportFormat,
	)
	if err != nil {
		return false, errors.Wrap(err, "couldn't export full report")
	}

	for _, file := range reportFiles {
		reportExt := strings.ToUpper(strings.Trim(filepath.Ext(file), "."))
		logger.WithField("filename", file).Infof("Export %s full report", reportExt)
	}

	logger.WithFields(logrus.Fields{
		"total":        stat.Total,
		"passed":       stat.Passed,
		"failed":       stat.Failed,
		"success_rate": stat.SuccessRate,
	}).Info("smoketest finished")

	return stat.AllPassed(), nil
}
