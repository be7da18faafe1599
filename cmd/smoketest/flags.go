package main

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mailoreply/smoketest/internal/checks"
	"github.com/mailoreply/smoketest/internal/config"
	"github.com/mailoreply/smoketest/internal/report"
	"github.com/mailoreply/smoketest/internal/version"
)

const (
	textLogFormat = "text"
	jsonLogFormat = "json"
)

var (
	logFormatsSet = map[string]any{
		textLogFormat: nil,
		jsonLogFormat: nil,
	}
	logFormats = slices.Sorted(maps.Keys(logFormatsSet))
)

const (
	maxReportFilenameLength = 249 // 255 (max length) - 5 (".json") - 1 (to be sure)

	defaultReportPath        = "reports"
	defaultReportName        = "smoketest-report-2006-January-02-15-04-05"
	defaultStaticChecksPath  = "testcases/static"
	defaultConfigPath        = "config.yaml"
	defaultFunctionsPath     = "/.netlify/functions"
	defaultErrorHandlingGoal = 3

	envPrefix = "SMOKETEST"
)

// secretFlags are masked when the used CLI args are copied to the report.
var secretFlags = map[string]bool{
	"baasAnonKey":      true,
	"baasServiceKey":   true,
	"dbPassword":       true,
	"testUserPassword": true,
	"addHeader":        true,
}

const cliDescription = `smoketest runs a suite of end-to-end checks against a deployed application
and its backend platform, prints every result as it completes and writes a
machine-readable report. It exits with status 0 only when every check passed.

Every option may also be set in the config file or through a SMOKETEST_<NAME>
environment variable, e.g. SMOKETEST_BAASURL.

Usage: %s [OPTIONS]

Options:
`

var (
	configPath  string
	quiet       bool
	logLevel    logrus.Level
	logFormat   string
	showVersion bool
)

var usage = func() {
	flag.CommandLine.SetOutput(os.Stdout)
	fmt.Fprintf(os.Stdout, cliDescription, os.Args[0])
	flag.PrintDefaults()
}

// defineConfigFlags registers the flags that map onto config.Config.
func defineConfigFlags(fs *flag.FlagSet) {
	reportPath := filepath.Join(".", defaultReportPath)
	staticChecksPath := filepath.Join(".", defaultStaticChecksPath)

	// Platform settings
	fs.String("baasURL", "", "Base URL of the backend platform")
	fs.String("baasAnonKey", "", "Public (anonymous) API key of the platform")
	fs.String("baasServiceKey", "", "Service role API key of the platform")

	// Application settings
	fs.String("appURL", "", "Base URL of the deployed application")
	fs.String("functionsPath", defaultFunctionsPath, "Path of the serverless functions under appURL")
	fs.String("workflowWebhookURL", "", "Workflow automation webhook to probe")

	// Database settings
	fs.String("dbHost", "", "Database host for the enterprise checks")
	fs.Uint16("dbPort", 5432, "Database port")
	fs.String("dbName", "postgres", "Database name")
	fs.String("dbUser", "postgres", "Database user")
	fs.String("dbPassword", "", "Database password")
	fs.String("dbSSLMode", "require", "Database SSL mode")
	fs.Int32("dbMaxConns", 5, "The maximum number of pooled database connections")

	// Test account settings
	fs.String("testUserEmail", "", "E-mail of the test account; without it a temporary account is created and removed with baasServiceKey")
	fs.String("testUserPassword", "", "Password of the test account")

	// HTTP client settings
	fs.Bool("tlsVerify", false, "If present, the received TLS certificate will be verified")
	fs.String("proxy", "", "Proxy URL to use")
	fs.String("addHeader", "", "An HTTP header to add to requests")
	fs.Duration("requestTimeout", 10*time.Second, "Timeout of a single HTTP request")

	// Execution settings
	fs.Int("workers", 1, "The number of checks run concurrently")
	fs.Float64("rateLimit", 0, "The maximum number of checks started per second, 0 for no limit")
	fs.Duration("checkTimeout", 30*time.Second, "Timeout of a single check")
	fs.StringSlice("skipChecks", nil, "Names of checks not to run; their dependents are not run either")

	// Check settings
	fs.StringSlice("schemaTables", checks.DefaultSchemaTables, "Tables that must be reachable over REST")
	fs.Int("errorHandlingThreshold", defaultErrorHandlingGoal, "How many of the 4 error handling cases must be handled, 0 for all")
	fs.String("sourceRoot", "", "Application source tree for the static pattern checks")
	fs.String("staticChecksPath", staticChecksPath, "A directory with static pattern check definitions")

	// Report settings
	fs.String("reportPath", reportPath, "A directory to store reports")
	fs.String("reportName", defaultReportName, "Report file name. Supports `time' package template format")
	fs.StringSlice("reportFormat", []string{report.JsonFormat}, "Export report in the following formats: "+strings.Join(report.ReportFormats, ", "))
	fs.String("consoleFormat", "text", "Console summary format: text, json")
	fs.Bool("noProgress", false, "If present, do not show the progress bar")
}

// parseFlags parses all smoketest CLI flags
func parseFlags() (args []string, err error) {
	flag.Usage = usage

	// General parameters
	flag.StringVar(&configPath, "configPath", defaultConfigPath, "Path to the config file")
	flag.BoolVar(&quiet, "quiet", false, "If present, disable verbose logging")
	logLvl := flag.String("logLevel", "info", "Logging level: panic, fatal, error, warn, info, debug, trace")
	flag.StringVar(&logFormat, "logFormat", textLogFormat, "Set logging format: "+strings.Join(logFormats, ", "))
	flag.BoolVar(&showVersion, "version", false, "Show smoketest version and exit")

	defineConfigFlags(flag.CommandLine)

	flag.Parse()

	// show version and exit
	if showVersion {
		fmt.Fprintf(os.Stderr, "smoketest %s\n", version.Version)
		os.Exit(0)
	}

	logrusLogLvl, err := logrus.ParseLevel(*logLvl)
	if err != nil {
		return nil, err
	}
	logLevel = logrusLogLvl

	if err = validateLogFormat(logFormat); err != nil {
		return nil, err
	}

	reportFormat, _ := flag.CommandLine.GetStringSlice("reportFormat")
	if err = report.ValidateReportFormat(reportFormat); err != nil {
		return nil, err
	}

	consoleFormat, _ := flag.CommandLine.GetString("consoleFormat")
	if err = report.ValidateConsoleFormat(consoleFormat); err != nil {
		return nil, err
	}

	reportName, _ := flag.CommandLine.GetString("reportName")
	_, reportFileName := filepath.Split(reportName)
	if len(reportFileName) > maxReportFilenameLength {
		return nil, errors.New("report filename too long")
	}

	args, err = normalizeArgs(flag.CommandLine)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't normalize args")
	}

	return args, nil
}

// normalizeArgs returns the used CLI args in a unified form. Secret values
// are masked.
func normalizeArgs(fs *flag.FlagSet) ([]string, error) {
	// disable lexicographical order
	fs.SortFlags = false

	var (
		args []string
		err  error
	)

	fn := func(f *flag.Flag) {
		// skip if flag wasn't changed
		if !f.Changed {
			return
		}

		var (
			value string
			arg   string
		)

		// all types listed in parseFlags function
		argType := f.Value.Type()
		switch argType {
		case "string":
			value = strings.TrimSpace(f.Value.String())

			if secretFlags[f.Name] {
				value = "***"
			}

			if strings.Contains(value, " ") {
				value = `"` + value + `"`
			}

			arg = fmt.Sprintf("--%s=%s", f.Name, value)

		case "stringSlice":
			// remove square brackets: [json,csv] -> json,csv
			value = strings.Trim(f.Value.String(), "[]")
			arg = fmt.Sprintf("--%s=%s", f.Name, value)

		case "bool":
			arg = fmt.Sprintf("--%s", f.Name)
			if f.Value.String() == "false" {
				arg = fmt.Sprintf("--%s=false", f.Name)
			}

		case "int", "int32", "uint16", "float64", "duration":
			value = f.Value.String()
			arg = fmt.Sprintf("--%s=%s", f.Name, value)

		default:
			err = multierror.Append(err, fmt.Errorf("unknown CLI argument type: %s", argType))
		}

		args = append(args, arg)
	}

	// get all changed flags
	fs.Visit(fn)

	if err != nil {
		return nil, err
	}

	return args, nil
}

// loadConfig merges the CLI flags, the optional config file at path and
// the SMOKETEST_* environment variables.
func loadConfig(fs *flag.FlagSet, v *viper.Viper, path string) (cfg *config.Config, err error) {
	err = v.BindPFlags(fs)
	if err != nil {
		return nil, err
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if _, statErr := os.Stat(path); statErr == nil {
		v.SetConfigFile(path)

		if err = v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "couldn't read config file %s", path)
		}
	} else if fs.Changed("configPath") {
		return nil, errors.Wrapf(statErr, "couldn't find config file %s", path)
	}

	cfg = &config.Config{}
	if err = v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "couldn't decode config")
	}

	return cfg, nil
}
