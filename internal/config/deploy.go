package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/pkg/errors"
)

// DeployEnvironment holds the schema deployment settings. It is read from
// environment variables only.
type DeployEnvironment struct {
	DBHost     string `env:"DB_HOST,default=localhost"`
	DBPort     int    `env:"DB_PORT,default=5432"`
	DBName     string `env:"DB_NAME,default=postgres"`
	DBUser     string `env:"DB_USER,default=postgres"`
	DBPassword string `env:"DB_SCHEMA_PASSWORD,required=true"`
	DBSSLMode  string `env:"DB_SSLMODE,default=require"`

	SchemaPath       string        `env:"SCHEMA_PATH,default=supabase_schema_clean.sql"`
	StatementTimeout time.Duration `env:"DEPLOY_TIMEOUT,default=60s"`

	BaaSURL     string `env:"BAAS_URL"`
	BaaSAnonKey string `env:"BAAS_ANON_KEY"`
}

var placeholderMarkers = []string{
	"demo-supabase-url",
	"your-project-id",
	"demo-anon-key",
	"your-supabase-anon-key",
}

// NewDeployConfig loads the deployment environment. A missing
// DB_SCHEMA_PASSWORD is reported as an error.
func NewDeployConfig() (*DeployEnvironment, error) {
	var cfg DeployEnvironment

	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal environment variables")
	}

	// required=true accepts a variable that is set but empty.
	if cfg.DBPassword == "" {
		return nil, errors.New("DB_SCHEMA_PASSWORD environment variable is required")
	}

	if cfg.DBPort < 1 || cfg.DBPort > 65535 {
		return nil, fmt.Errorf("DB_PORT must be between 1 and 65535")
	}

	return &cfg, nil
}

// DatabaseURL builds a postgres connection string.
func (c *DeployEnvironment) DatabaseURL() string {
	return postgresURL(c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// CheckBaaSSettings rejects missing or placeholder BaaS credentials.
func (c *DeployEnvironment) CheckBaaSSettings() error {
	if c.BaaSURL == "" || c.BaaSAnonKey == "" {
		return errors.New("BAAS_URL and BAAS_ANON_KEY must be set")
	}

	for _, marker := range placeholderMarkers {
		if strings.Contains(c.BaaSURL, marker) {
			return errors.Errorf("BAAS_URL contains placeholder value %q", marker)
		}
		if strings.Contains(c.BaaSAnonKey, marker) {
			return errors.Errorf("BAAS_ANON_KEY contains placeholder value %q", marker)
		}
	}

	return nil
}
