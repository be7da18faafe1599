package scanner

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type cleanup struct {
	name string
	fn   func(ctx context.Context) error
}

// Env is the state shared by all checks of one run. Checks publish the ids
// they create through Set so that dependent checks can use them, and
// register teardown actions with Cleanup.
type Env struct {
	mu sync.Mutex

	vars     map[string]any
	cleanups []cleanup

	logger *logrus.Entry
}

func NewEnv(logger *logrus.Logger) *Env {
	return &Env{
		vars:   make(map[string]any),
		logger: logger.WithField("component", "env"),
	}
}

func (e *Env) Set(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.vars[key] = value
}

func (e *Env) Get(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.vars[key]
	return v, ok
}

// String returns the value stored under key if it is a non-empty string.
func (e *Env) String(key string) (string, bool) {
	v, ok := e.Get(key)
	if !ok {
		return "", false
	}

	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}

	return s, true
}

func (e *Env) Logger() *logrus.Entry {
	return e.logger
}

// Cleanup registers a teardown action. Actions run after all checks have
// finished, in reverse registration order, whatever the verdicts were.
func (e *Env) Cleanup(name string, fn func(ctx context.Context) error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cleanups = append(e.cleanups, cleanup{name: name, fn: fn})
}

// Teardown runs all registered cleanup actions once. Every action is
// attempted; the failures are returned together.
func (e *Env) Teardown(ctx context.Context) error {
	e.mu.Lock()
	cleanups := e.cleanups
	e.cleanups = nil
	e.mu.Unlock()

	var result error

	for i := len(cleanups) - 1; i >= 0; i-- {
		c := cleanups[i]

		if err := runCleanup(ctx, c); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "teardown %q", c.name))
			continue
		}

		e.logger.WithField("action", c.name).Debug("teardown action completed")
	}

	return result
}

func runCleanup(ctx context.Context, c cleanup) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	return c.fn(ctx)
}
