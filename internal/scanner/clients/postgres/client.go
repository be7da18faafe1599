package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultMaxConns = 5

// Client owns the connection pool shared by all database checks of a run.
// The pool is opened by Setup and closed by Close; every call acquires and
// releases its own connection.
type Client struct {
	databaseURL string
	maxConns    int32

	pool   *pgxpool.Pool
	logger *logrus.Entry
}

func New(databaseURL string, maxConns int32, logger *logrus.Logger) *Client {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}

	return &Client{
		databaseURL: databaseURL,
		maxConns:    maxConns,
		logger:      logger.WithField("component", "postgres"),
	}
}

func (c *Client) Name() string {
	return "database pool"
}

// Setup opens the pool and checks that the database answers.
func (c *Client) Setup(ctx context.Context) error {
	poolConfig, err := pgxpool.ParseConfig(c.databaseURL)
	if err != nil {
		return errors.Wrap(err, "couldn't parse database URL")
	}
	poolConfig.MaxConns = c.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return errors.Wrap(err, "couldn't create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return errors.Wrap(err, "couldn't connect to database")
	}

	c.pool = pool

	c.logger.WithFields(logrus.Fields{
		"host":      poolConfig.ConnConfig.Host,
		"database":  poolConfig.ConnConfig.Database,
		"max_conns": c.maxConns,
	}).Info("Connected to database")

	return nil
}

func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}

// Pool returns the open pool. It panics when Setup has not succeeded, which
// the scanner guarantees never happens for a running check.
func (c *Client) Pool() *pgxpool.Pool {
	if c.pool == nil {
		panic("postgres: pool used before setup")
	}
	return c.pool
}

// WithTx runs fn in a transaction that is committed when fn succeeds and
// rolled back otherwise.
func (c *Client) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := c.Pool().BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "couldn't begin transaction")
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			c.logger.WithError(err).Warn("couldn't roll back transaction")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "couldn't commit transaction")
	}

	return nil
}
