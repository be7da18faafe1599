package postgres

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

// ExecScript runs a whole SQL script in one transaction. Nothing is applied
// when any statement fails.
func (c *Client) ExecScript(ctx context.Context, script string) error {
	if script == "" {
		return errors.New("empty schema script")
	}

	return c.WithTx(ctx, func(tx pgx.Tx) error {
		// Without arguments pgx uses the simple protocol, which accepts
		// several statements in one call.
		if _, err := tx.Exec(ctx, script); err != nil {
			return errors.Wrap(err, "couldn't execute schema script")
		}
		return nil
	})
}

// ExecFile reads a SQL script from disk and runs it with ExecScript.
func (c *Client) ExecFile(ctx context.Context, path string) error {
	script, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "couldn't read schema file %s", path)
	}

	return c.ExecScript(ctx, string(script))
}

// Migrate applies the goose migrations found in dir.
func (c *Client) Migrate(ctx context.Context, dir string) error {
	db := stdlib.OpenDBFromPool(c.Pool())
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "failed to set goose dialect")
	}

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return errors.Wrapf(err, "couldn't apply migrations from %s", dir)
	}

	return nil
}
