package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const publicSchema = "public"

// TableColumns returns the column names of a public table in ordinal order.
// A missing table yields no columns.
func (c *Client) TableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := c.Pool().Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, publicSchema, table)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't list columns of %s", table)
	}

	columns, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't read columns of %s", table)
	}

	return columns, nil
}

// EnumHasLabel reports whether the enum type has the given label.
func (c *Client) EnumHasLabel(ctx context.Context, enum, label string) (bool, error) {
	var exists bool

	err := c.Pool().QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_enum e
			JOIN pg_type t ON e.enumtypid = t.oid
			WHERE t.typname = $1 AND e.enumlabel = $2
		)`, enum, label).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "couldn't look up label %s of enum %s", label, enum)
	}

	return exists, nil
}

// FunctionExists reports whether a function with the given name exists in
// the public schema.
func (c *Client) FunctionExists(ctx context.Context, name string) (bool, error) {
	var exists bool

	err := c.Pool().QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_proc p
			JOIN pg_namespace n ON p.pronamespace = n.oid
			WHERE n.nspname = $1 AND p.proname = $2
		)`, publicSchema, name).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "couldn't look up function %s", name)
	}

	return exists, nil
}

// Tables lists the base tables of the public schema.
func (c *Client) Tables(ctx context.Context) ([]string, error) {
	rows, err := c.Pool().Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, publicSchema)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list tables")
	}

	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read tables")
	}

	return tables, nil
}

// Functions lists the functions of the public schema.
func (c *Client) Functions(ctx context.Context) ([]string, error) {
	rows, err := c.Pool().Query(ctx, `
		SELECT DISTINCT p.proname
		FROM pg_proc p
		JOIN pg_namespace n ON p.pronamespace = n.oid
		WHERE n.nspname = $1
		ORDER BY p.proname`, publicSchema)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list functions")
	}

	functions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read functions")
	}

	return functions, nil
}

// Missing returns the entries of want that are not in have, keeping the
// order of want.
func Missing(want, have []string) []string {
	present := make(map[string]struct{}, len(have))
	for _, h := range have {
		present[h] = struct{}{}
	}

	var missing []string
	for _, w := range want {
		if _, ok := present[w]; !ok {
			missing = append(missing, w)
		}
	}

	return missing
}
