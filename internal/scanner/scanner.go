package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mailoreply/smoketest/internal/config"
	"github.com/mailoreply/smoketest/internal/db"
	"github.com/mailoreply/smoketest/internal/platform"
)

const (
	defaultCheckTimeout    = 30 * time.Second
	defaultTeardownTimeout = 60 * time.Second

	SkippedMessage = "skipped: prerequisite failed"
)

var ErrNoChecks = errors.New("no checks registered")

// Scanner is the check registry and executor of a run.
type Scanner struct {
	logger *logrus.Logger
	cfg    *config.Config

	checks    []*Check
	index     map[string]int
	skip      map[string]bool
	skipped   map[string]bool
	resources []Resource

	trace   func(*db.Result)
	traceMu sync.Mutex
}

// New creates a scanner. trace is called once for every completed check,
// as soon as its result is known; it may be nil.
func New(logger *logrus.Logger, cfg *config.Config, trace func(*db.Result)) *Scanner {
	skip := make(map[string]bool, len(cfg.SkipChecks))
	for _, name := range cfg.SkipChecks {
		skip[name] = true
	}

	return &Scanner{
		logger:  logger,
		cfg:     cfg,
		index:   make(map[string]int),
		skip:    skip,
		skipped: make(map[string]bool),
		trace:   trace,
	}
}

// Use registers shared resources. They are set up in order before the
// first check runs.
func (s *Scanner) Use(resources ...Resource) {
	s.resources = append(s.resources, resources...)
}

// Register appends checks to the suite. A check listed in skipChecks is not
// registered, and neither is any check that depends on it.
func (s *Scanner) Register(checks ...*Check) error {
	for _, c := range checks {
		if c == nil {
			return errors.New("nil check")
		}
		if c.Name == "" {
			return errors.New("check without a name")
		}
		if c.Run == nil {
			return errors.Errorf("check %q has no function", c.Name)
		}
		if _, ok := s.index[c.Name]; ok || s.skipped[c.Name] {
			return errors.Errorf("check %q is registered twice", c.Name)
		}

		if s.skip[c.Name] {
			s.logger.WithField("check", c.Name).Info("check skipped by configuration")
			s.skipped[c.Name] = true
			continue
		}

		skippedPrerequisite := ""
		for _, dep := range c.DependsOn {
			if s.skipped[dep] {
				skippedPrerequisite = dep
				break
			}
			if _, ok := s.index[dep]; !ok {
				return errors.Errorf("check %q depends on %q which is not registered before it", c.Name, dep)
			}
		}

		if skippedPrerequisite != "" {
			s.logger.WithFields(logrus.Fields{
				"check":        c.Name,
				"prerequisite": skippedPrerequisite,
			}).Warn("check not registered because its prerequisite is skipped")
			s.skipped[c.Name] = true
			continue
		}

		s.index[c.Name] = len(s.checks)
		s.checks = append(s.checks, c)
	}

	return nil
}

// Checks returns the names of the registered checks in registration order.
func (s *Scanner) Checks() []string {
	names := make([]string, len(s.checks))
	for i, c := range s.checks {
		names[i] = c.Name
	}
	return names
}

// Run executes the suite. It never stops because of a failing check: every
// registered check gets exactly one result in the returned DB. The error is
// only returned when there is nothing to run.
func (s *Scanner) Run(ctx context.Context) (*db.DB, error) {
	if len(s.checks) == 0 {
		return nil, ErrNoChecks
	}

	if err := setupResources(ctx, s.resources); err != nil {
		s.logger.WithError(err).Error("harness initialization failed")

		fatal := db.NewFatalDB(err)
		s.emit(fatal.Get(0))

		return fatal, nil
	}
	defer closeResources(s.resources)

	workers := s.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var limiter *rate.Limiter
	if s.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), 1)
	}

	bar := platform.NewProgressBar(len(s.checks), !s.cfg.NoProgress)
	defer bar.Finish()

	env := NewEnv(s.logger)
	results := db.NewDB(s.Checks())

	done := make([]chan struct{}, len(s.checks))
	for i := range done {
		done[i] = make(chan struct{})
	}

	s.logger.WithFields(logrus.Fields{
		"checks":  len(s.checks),
		"workers": workers,
	}).Info("Running checks")

	start := time.Now()

	workChan := make(chan int)

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()

			for i := range workChan {
				r := s.runCheck(ctx, env, limiter, results, done, i)

				if err := results.Store(i, r); err != nil {
					s.logger.WithError(err).Error("couldn't store check result")
				}
				close(done[i])

				s.emit(results.Get(i))
				_ = bar.Add(1)
			}
		}()
	}

	// Checks are handed out in registration order over an unbuffered
	// channel, so a prerequisite is always taken before its dependents.
	for i := range s.checks {
		workChan <- i
	}
	close(workChan)

	wg.Wait()
	results.Finish()

	s.logger.WithField("duration", time.Since(start).String()).Info("Checks finished")

	s.teardown(env)

	return results, nil
}

func (s *Scanner) runCheck(
	ctx context.Context,
	env *Env,
	limiter *rate.Limiter,
	results *db.DB,
	done []chan struct{},
	i int,
) *db.Result {
	c := s.checks[i]
	logger := s.logger.WithField("check", c.Name)

	var failed []string
	for _, dep := range c.DependsOn {
		depIndex := s.index[dep]
		<-done[depIndex]

		if r := results.Get(depIndex); r == nil || !r.Passed {
			failed = append(failed, dep)
		}
	}

	if len(failed) > 0 {
		logger.WithField("prerequisites", failed).Info("check skipped")
		return db.Fail(c.Name, SkippedMessage, map[string]any{"prerequisites": failed})
	}

	if err := ctx.Err(); err != nil {
		return db.Fail(c.Name, fmt.Sprintf("not run: %v", err), nil)
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return db.Fail(c.Name, fmt.Sprintf("not run: %v", err), nil)
		}
	}

	logger.Debug("check started")

	return s.execute(ctx, env, c)
}

// execute runs the check function in its own goroutine so that a check
// which ignores its context still cannot block the run past its deadline.
func (s *Scanner) execute(ctx context.Context, env *Env, c *Check) *db.Result {
	timeout := s.cfg.CheckTimeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan *db.Result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				s.logger.WithFields(logrus.Fields{
					"check": c.Name,
					"panic": p,
				}).Error("check crashed")

				resultChan <- db.Fail(
					c.Name,
					fmt.Sprintf("check crashed: %v", p),
					map[string]any{"panic": fmt.Sprint(p)},
				)
			}
		}()

		resultChan <- c.Run(checkCtx, env)
	}()

	select {
	case r := <-resultChan:
		if r == nil {
			return db.Fail(c.Name, "check returned no result", nil)
		}
		return r

	case <-checkCtx.Done():
		if ctx.Err() != nil {
			return db.Fail(c.Name, fmt.Sprintf("cancelled: %v", ctx.Err()), nil)
		}

		s.logger.WithFields(logrus.Fields{
			"check":   c.Name,
			"timeout": timeout.String(),
		}).Warn("check timed out")

		return db.Fail(
			c.Name,
			fmt.Sprintf("timed out after %s", timeout),
			map[string]any{"timeout": timeout.String()},
		)
	}
}

// teardown runs with its own context: cleanup must happen even when the
// run itself was cancelled.
func (s *Scanner) teardown(env *Env) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTeardownTimeout)
	defer cancel()

	if err := env.Teardown(ctx); err != nil {
		s.logger.WithError(err).Warn("teardown finished with errors")
		return
	}

	s.logger.Debug("teardown finished")
}

func (s *Scanner) emit(r *db.Result) {
	if s.trace == nil || r == nil {
		return
	}

	s.traceMu.Lock()
	defer s.traceMu.Unlock()

	s.trace(r)
}
