package main

import (
	"fmt"

	"github.com/mailoreply/smoketest/internal/config"
)

func validateLogFormat(logFormat string) error {
	if _, ok := logFormatsSet[logFormat]; !ok {
		return fmt.Errorf("invalid log format: %s", logFormat)
	}

	return nil
}

// target names the system under test in reports.
func target(cfg *config.Config) string {
	if cfg.AppURL != "" {
		return cfg.AppURL
	}
	return cfg.BaaSURL
}
