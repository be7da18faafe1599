package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/mailoreply/smoketest/internal/scanner/clients/postgres"
)

var (
	expectedTables    = []string{"users", "companies", "user_settings", "ai_generations", "templates"}
	expectedFunctions = []string{"can_user_generate", "increment_user_usage", "reset_daily_usage", "reset_monthly_usage"}
)

// catalog lists the objects of the public schema.
type catalog interface {
	Tables(ctx context.Context) ([]string, error)
	Functions(ctx context.Context) ([]string, error)
}

// verify prints which expected tables and functions are present. A missing
// table is an error; missing functions are only reported.
func verify(ctx context.Context, c catalog, w io.Writer) error {
	tables, err := c.Tables(ctx)
	if err != nil {
		return errors.Wrap(err, "couldn't list tables")
	}

	functions, err := c.Functions(ctx)
	if err != nil {
		return errors.Wrap(err, "couldn't list functions")
	}

	missingTables := postgres.Missing(expectedTables, tables)
	missingFunctions := postgres.Missing(expectedFunctions, functions)

	fmt.Fprintf(w, "Tables present: %s\n", strings.Join(present(expectedTables, missingTables), ", "))
	if len(missingTables) > 0 {
		fmt.Fprintf(w, "Tables missing: %s\n", strings.Join(missingTables, ", "))
	}

	fmt.Fprintf(w, "Functions present: %s\n", strings.Join(present(expectedFunctions, missingFunctions), ", "))
	if len(missingFunctions) > 0 {
		fmt.Fprintf(w, "Functions missing: %s\n", strings.Join(missingFunctions, ", "))
	}

	if len(missingTables) > 0 {
		return errors.Errorf("%d expected table(s) missing", len(missingTables))
	}

	return nil
}

func present(expected, missing []string) []string {
	absent := make(map[string]bool, len(missing))
	for _, m := range missing {
		absent[m] = true
	}

	var found []string
	for _, e := range expected {
		if !absent[e] {
			found = append(found, e)
		}
	}
	return found
}
