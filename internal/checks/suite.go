package checks

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mailoreply/smoketest/internal/config"
	"github.com/mailoreply/smoketest/internal/db"
	"github.com/mailoreply/smoketest/internal/scanner"
	"github.com/mailoreply/smoketest/internal/scanner/clients"
	"github.com/mailoreply/smoketest/internal/scanner/clients/baas"
	"github.com/mailoreply/smoketest/internal/store"
)

// Deps are the collaborators the checks talk to. BaaS is nil when the
// platform is not configured and Store is nil without database access.
type Deps struct {
	Config *config.Config
	Logger *logrus.Logger

	HTTP  clients.HTTPClient
	BaaS  *baas.Client
	Store store.Store
}

type suite struct {
	*Deps
}

// Build returns the checks that the configuration allows, in execution
// order. Groups whose collaborators are not configured are left out with
// a warning.
func Build(d *Deps) ([]*scanner.Check, error) {
	if d.Config == nil || d.Logger == nil || d.HTTP == nil {
		return nil, errors.New("checks need a config, a logger and an HTTP client")
	}

	s := &suite{Deps: d}
	var checks []*scanner.Check

	if d.BaaS != nil {
		checks = append(checks, s.platformChecks()...)
	} else {
		d.Logger.Warn("baasURL or baasAnonKey is not set, platform checks are not registered")
	}

	if d.Config.AppEnabled() {
		checks = append(checks, s.appChecks()...)
		checks = append(checks, s.paymentCheck())
	} else {
		d.Logger.Warn("appURL is not set, application checks are not registered")
	}

	if d.Config.WorkflowWebhookURL != "" {
		checks = append(checks, s.webhookCheck())
	}

	if d.Store != nil {
		checks = append(checks, s.enterpriseChecks()...)
	} else {
		d.Logger.Warn("database access is not configured, enterprise checks are not registered")
	}

	if d.Config.SourceRoot != "" {
		definitions, err := LoadStaticChecks(d.Config.StaticChecksPath)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't load static pattern checks")
		}
		for _, def := range definitions {
			checks = append(checks, s.staticCheck(def))
		}
	}

	return checks, nil
}

// requireString fetches a value published by a prerequisite. The second
// return value is a failing result to return when it is missing.
func requireString(env *scanner.Env, name, key string) (string, *db.Result) {
	v, ok := env.String(key)
	if !ok {
		return "", db.Fail(name, fmt.Sprintf("skipped: missing prerequisite value %s", key), map[string]any{"missing": key})
	}
	return v, nil
}

// cleanup wraps a teardown action with a debug log line.
func (s *suite) cleanup(env *scanner.Env, name string, fn func(ctx context.Context) error) {
	env.Cleanup(name, func(ctx context.Context) error {
		s.Logger.WithField("action", name).Debug("running teardown")
		return fn(ctx)
	})
}
