package scanner

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailoreply/smoketest/internal/config"
	"github.com/mailoreply/smoketest/internal/db"
)

func newTestScanner(workers int, trace func(*db.Result)) *Scanner {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		Workers:      workers,
		CheckTimeout: 200 * time.Millisecond,
		NoProgress:   true,
	}

	return New(logger, cfg, trace)
}

func passing(name string) *Check {
	return NewCheck(name, func(ctx context.Context, env *Env) *db.Result {
		return db.Pass(name, "ok", nil)
	})
}

func failing(name string) *Check {
	return NewCheck(name, func(ctx context.Context, env *Env) *db.Result {
		return db.Fail(name, "broken", map[string]any{"status_code": 500})
	})
}

type fakeResource struct {
	err    error
	closed bool
}

func (r *fakeResource) Name() string { return "fake" }

func (r *fakeResource) Setup(ctx context.Context) error { return r.err }

func (r *fakeResource) Close() { r.closed = true }

func TestRunRecordsEveryCheck(t *testing.T) {
	var traced []string
	s := newTestScanner(1, func(r *db.Result) { traced = append(traced, r.Name) })

	require.NoError(t, s.Register(
		passing("pass"),
		failing("fail"),
		NewCheck("panic", func(ctx context.Context, env *Env) *db.Result {
			panic("boom")
		}),
		NewCheck("nil", func(ctx context.Context, env *Env) *db.Result {
			return nil
		}),
		NewCheck("slow", func(ctx context.Context, env *Env) *db.Result {
			time.Sleep(time.Second)
			return db.Pass("slow", "too late", nil)
		}),
		passing("after"),
	))

	results, err := s.Run(context.Background())
	require.NoError(t, err)

	stat := results.GetStatistics()
	require.Equal(t, 6, stat.Total)
	assert.Equal(t, 2, stat.Passed)
	assert.Equal(t, 4, stat.Failed)
	assert.False(t, stat.AllPassed())

	assert.Equal(t, []string{"pass", "fail", "panic", "nil", "slow", "after"}, traced)

	assert.Contains(t, stat.Results[2].Message, "boom")
	assert.Equal(t, "check returned no result", stat.Results[3].Message)
	assert.Contains(t, stat.Results[4].Message, "timed out")
	assert.True(t, stat.Results[5].Passed)
}

func TestResultNameIsRegisteredName(t *testing.T) {
	s := newTestScanner(1, nil)
	require.NoError(t, s.Register(NewCheck("Registered", func(ctx context.Context, env *Env) *db.Result {
		return db.Pass("something else", "ok", nil)
	})))

	results, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Registered", results.Get(0).Name)
}

func TestDependentSkippedWithoutCall(t *testing.T) {
	called := false

	s := newTestScanner(2, nil)
	require.NoError(t, s.Register(
		failing("create company"),
		NewCheck("create manager", func(ctx context.Context, env *Env) *db.Result {
			called = true
			return db.Pass("create manager", "ok", nil)
		}, "create company"),
		NewCheck("invite", func(ctx context.Context, env *Env) *db.Result {
			called = true
			return db.Pass("invite", "ok", nil)
		}, "create manager"),
	))

	results, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, called)

	stat := results.GetStatistics()
	require.Equal(t, 3, stat.Total)
	assert.Equal(t, SkippedMessage, stat.Results[1].Message)
	assert.Equal(t, []string{"create company"}, stat.Results[1].Details["prerequisites"])
	assert.Equal(t, []string{"create manager"}, stat.Results[2].Details["prerequisites"])
}

func TestDependentSeesPrerequisiteValues(t *testing.T) {
	s := newTestScanner(4, nil)
	require.NoError(t, s.Register(
		NewCheck("producer", func(ctx context.Context, env *Env) *db.Result {
			time.Sleep(20 * time.Millisecond)
			env.Set("company_id", "c-1")
			return db.Pass("producer", "ok", nil)
		}),
		NewCheck("consumer", func(ctx context.Context, env *Env) *db.Result {
			id, ok := env.String("company_id")
			if !ok {
				return db.Fail("consumer", "no company id", nil)
			}
			return db.Pass("consumer", id, nil)
		}, "producer"),
	))

	results, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, results.Get(1).Passed)
	assert.Equal(t, "c-1", results.Get(1).Message)
}

func TestFatalInitialization(t *testing.T) {
	var traced []*db.Result
	called := false

	s := newTestScanner(1, func(r *db.Result) { traced = append(traced, r) })
	first := &fakeResource{}
	broken := &fakeResource{err: errors.New("connection refused")}
	s.Use(first, broken)

	require.NoError(t, s.Register(NewCheck("a", func(ctx context.Context, env *Env) *db.Result {
		called = true
		return db.Pass("a", "ok", nil)
	})))

	results, err := s.Run(context.Background())
	require.NoError(t, err)

	stat := results.GetStatistics()
	require.Equal(t, 1, stat.Total)
	assert.True(t, stat.Fatal)
	assert.Equal(t, db.InitializationCheckName, stat.Results[0].Name)
	assert.Contains(t, stat.Results[0].Message, "connection refused")
	assert.False(t, called)
	assert.True(t, first.closed)
	assert.Len(t, traced, 1)
}

func TestResourcesClosedAfterRun(t *testing.T) {
	res := &fakeResource{}

	s := newTestScanner(1, nil)
	s.Use(res)
	require.NoError(t, s.Register(passing("a")))

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.closed)
}

func TestTeardownRunsInReverseOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string

	record := func(name string, err error) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return err
		}
	}

	s := newTestScanner(1, nil)
	require.NoError(t, s.Register(
		NewCheck("setup", func(ctx context.Context, env *Env) *db.Result {
			env.Cleanup("company", record("company", nil))
			env.Cleanup("manager", record("manager", errors.New("already gone")))
			return db.Pass("setup", "ok", nil)
		}),
		NewCheck("half done", func(ctx context.Context, env *Env) *db.Result {
			env.Cleanup("invitation", record("invitation", nil))
			panic("failed after creating the invitation")
		}),
	))

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"invitation", "manager", "company"}, order)
}

func TestEnvTeardownAggregatesErrors(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := NewEnv(logger)
	env.Cleanup("a", func(ctx context.Context) error { return errors.New("a failed") })
	env.Cleanup("b", func(ctx context.Context) error { panic("b crashed") })
	env.Cleanup("c", func(ctx context.Context) error { return nil })

	err := env.Teardown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b crashed")

	assert.NoError(t, env.Teardown(context.Background()), "teardown actions run only once")
}

func TestCancelledRunStillRecordsResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestScanner(1, nil)
	require.NoError(t, s.Register(passing("a"), passing("b")))

	results, err := s.Run(ctx)
	require.NoError(t, err)

	stat := results.GetStatistics()
	require.Equal(t, 2, stat.Total)
	assert.Equal(t, 2, stat.Failed)
	assert.Contains(t, stat.Results[0].Message, "not run")
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name   string
		checks []*Check
		ok     bool
	}{
		{"valid", []*Check{passing("a"), NewCheck("b", passing("b").Run, "a")}, true},
		{"nil check", []*Check{nil}, false},
		{"no name", []*Check{passing("")}, false},
		{"no function", []*Check{{Name: "a"}}, false},
		{"duplicate", []*Check{passing("a"), passing("a")}, false},
		{"unknown dependency", []*Check{NewCheck("b", passing("b").Run, "a")}, false},
		{"later dependency", []*Check{NewCheck("b", passing("b").Run, "a"), passing("a")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestScanner(1, nil).Register(tt.checks...)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSkipChecks(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := New(logger, &config.Config{Workers: 1, NoProgress: true, SkipChecks: []string{"a"}}, nil)

	require.NoError(t, s.Register(
		passing("a"),
		NewCheck("b", passing("b").Run, "a"),
		passing("c"),
	))

	assert.Equal(t, []string{"c"}, s.Checks())
}

func TestRunWithoutChecks(t *testing.T) {
	_, err := newTestScanner(1, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoChecks)
}

// buildChecks creates one check per delay; crashes marks the checks that
// panic instead of returning.
func buildChecks(delays []int, crashes []bool) []*Check {
	checks := make([]*Check, len(delays))

	for i := range delays {
		name := fmt.Sprintf("check-%d", i)
		delay := time.Duration(delays[i]) * time.Millisecond
		crash := i < len(crashes) && crashes[i]

		checks[i] = NewCheck(name, func(ctx context.Context, env *Env) *db.Result {
			time.Sleep(delay)
			if crash {
				panic("crash in " + name)
			}
			return db.Pass(name, "ok", nil)
		})
	}

	return checks
}

func testPropertyOrderAndCount(delays []int, crashes []bool, workers int) bool {
	s := newTestScanner(workers, nil)
	if err := s.Register(buildChecks(delays, crashes)...); err != nil {
		return false
	}

	results, err := s.Run(context.Background())
	if len(delays) == 0 {
		return errors.Is(err, ErrNoChecks)
	}
	if err != nil {
		return false
	}

	stat := results.GetStatistics()
	if stat.Total != len(delays) {
		return false
	}

	for i, r := range stat.Results {
		if r.Name != fmt.Sprintf("check-%d", i) {
			return false
		}

		crash := i < len(crashes) && crashes[i]
		if crash && (r.Passed || r.Message == "") {
			return false
		}
		if !crash && !r.Passed {
			return false
		}
	}

	return true
}

func TestScannerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.MaxSize = 12

	properties := gopter.NewProperties(parameters)

	properties.Property("testPropertyOrderAndCount", prop.ForAllNoShrink(
		testPropertyOrderAndCount,
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.SliceOf(gen.Bool()),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}
