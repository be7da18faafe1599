package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/mailoreply/smoketest/internal/helpers"
)

type Config struct {
	// BaaS settings
	BaaSURL        string `mapstructure:"baasURL" validate:"omitempty,url"`
	BaaSAnonKey    string `mapstructure:"baasAnonKey"`
	BaaSServiceKey string `mapstructure:"baasServiceKey"`

	// Application settings
	AppURL             string `mapstructure:"appURL" validate:"omitempty,url"`
	FunctionsPath      string `mapstructure:"functionsPath" validate:"omitempty,startswith=/"`
	WorkflowWebhookURL string `mapstructure:"workflowWebhookURL" validate:"omitempty,url"`

	// Database settings
	DBHost     string `mapstructure:"dbHost"`
	DBPort     uint16 `mapstructure:"dbPort" validate:"omitempty,min=1"`
	DBName     string `mapstructure:"dbName"`
	DBUser     string `mapstructure:"dbUser"`
	DBPassword string `mapstructure:"dbPassword"`
	DBSSLMode  string `mapstructure:"dbSSLMode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	DBMaxConns int32  `mapstructure:"dbMaxConns" validate:"min=0"`

	// Test account settings
	TestUserEmail    string `mapstructure:"testUserEmail"`
	TestUserPassword string `mapstructure:"testUserPassword"`

	// HTTP client settings
	TLSVerify      bool          `mapstructure:"tlsVerify"`
	Proxy          string        `mapstructure:"proxy" validate:"omitempty,url"`
	AddHeader      string        `mapstructure:"addHeader"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout" validate:"min=0"`

	// Execution settings
	Workers      int           `mapstructure:"workers" validate:"min=1"`
	RateLimit    float64       `mapstructure:"rateLimit" validate:"min=0"`
	CheckTimeout time.Duration `mapstructure:"checkTimeout" validate:"min=0"`
	SkipChecks   []string      `mapstructure:"skipChecks"`

	// Check settings
	SchemaTables           []string `mapstructure:"schemaTables"`
	ErrorHandlingThreshold int      `mapstructure:"errorHandlingThreshold" validate:"min=0,max=4"`
	SourceRoot             string   `mapstructure:"sourceRoot"`
	StaticChecksPath       string   `mapstructure:"staticChecksPath"`

	// Report settings
	ReportPath    string   `mapstructure:"reportPath" validate:"required"`
	ReportName    string   `mapstructure:"reportName" validate:"required"`
	ReportFormat  []string `mapstructure:"reportFormat"`
	ConsoleFormat string   `mapstructure:"consoleFormat" validate:"omitempty,oneof=text json"`
	NoProgress    bool     `mapstructure:"noProgress"`

	// config.yaml
	HTTPHeaders map[string]string          `mapstructure:"headers"`
	RoleLimits  map[string]map[string]int `mapstructure:"roleLimits"`

	// Other settings
	LogLevel string `mapstructure:"logLevel"`

	Args []string
}

// PlatformEnabled reports whether the BaaS REST and auth checks can run.
func (c *Config) PlatformEnabled() bool {
	return c.BaaSURL != "" && c.BaaSAnonKey != ""
}

// AppEnabled reports whether the application endpoint checks can run.
func (c *Config) AppEnabled() bool {
	return c.AppURL != ""
}

// DatabaseEnabled reports whether direct database access is configured.
func (c *Config) DatabaseEnabled() bool {
	return c.DBHost != "" && c.DBPassword != ""
}

// DatabaseURL builds a postgres connection string from the DB* settings.
func (c *Config) DatabaseURL() string {
	sslMode := c.DBSSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return postgresURL(c.DBUser, c.DBPassword, c.DBHost, int(c.DBPort), c.DBName, sslMode)
}

// postgresURL escapes the credentials and database name so that any
// password survives connection string parsing.
func postgresURL(user, password, host string, port int, name, sslMode string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + name,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	var result error

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			for _, fieldErr := range validationErrors {
				result = multierror.Append(result, fmt.Errorf(
					"invalid value for %s: failed on %q", fieldErr.Field(), fieldErr.Tag(),
				))
			}
		} else {
			result = multierror.Append(result, errors.Wrap(err, "couldn't validate config"))
		}
	}

	if c.TestUserEmail != "" && c.TestUserPassword == "" {
		result = multierror.Append(result, errors.New("testUserPassword must be set together with testUserEmail"))
	}

	if c.TestUserEmail != "" {
		email, err := helpers.ValidateEmail(c.TestUserEmail)
		if err != nil {
			result = multierror.Append(result, errors.Wrap(err, "invalid testUserEmail"))
		} else {
			c.TestUserEmail = email
		}
	}

	for name, u := range map[string]*string{"baasURL": &c.BaaSURL, "appURL": &c.AppURL} {
		if *u == "" {
			continue
		}

		normalized, err := helpers.ValidateURL(*u)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "invalid %s", name))
			continue
		}
		*u = normalized
	}

	if c.BaaSURL != "" && c.BaaSAnonKey == "" {
		result = multierror.Append(result, errors.New("baasAnonKey must be set together with baasURL"))
	}

	return result
}
