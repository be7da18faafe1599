package db

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// InitializationCheckName is the name of the synthetic result recorded when
// the shared resources of a run could not be set up.
const InitializationCheckName = "Harness Initialization"

// DB keeps the results of one run. Every registered check owns one slot that
// is written exactly once, so the stored order always matches the
// registration order no matter in which order checks complete.
type DB struct {
	sync.Mutex

	names   []string
	results []*Result

	fatal bool

	startedAt  time.Time
	finishedAt time.Time
}

func NewDB(checkNames []string) *DB {
	names := make([]string, len(checkNames))
	copy(names, checkNames)

	return &DB{
		names:     names,
		results:   make([]*Result, len(names)),
		startedAt: time.Now(),
	}
}

// NewFatalDB returns a DB holding a single failing result describing why the
// run could not start.
func NewFatalDB(err error) *DB {
	db := NewDB([]string{InitializationCheckName})
	db.fatal = true
	db.results[0] = Fail(
		InitializationCheckName,
		fmt.Sprintf("initialization failed: %v", err),
		map[string]any{"error": err.Error()},
	)
	db.finishedAt = time.Now()

	return db
}

// Store saves the result of the check registered at index. The result name
// is forced to the registered name.
func (db *DB) Store(index int, r *Result) error {
	db.Lock()
	defer db.Unlock()

	if index < 0 || index >= len(db.results) {
		return errors.Errorf("result index %d out of range [0, %d)", index, len(db.results))
	}

	if r == nil {
		return errors.Errorf("nil result for check %q", db.names[index])
	}

	if db.results[index] != nil {
		return errors.Errorf("result for check %q is already stored", db.names[index])
	}

	db.results[index] = r.withName(db.names[index])

	return nil
}

// Get returns the result stored for index, or nil if the check has not
// completed yet.
func (db *DB) Get(index int) *Result {
	db.Lock()
	defer db.Unlock()

	if index < 0 || index >= len(db.results) {
		return nil
	}

	return db.results[index]
}

// Results returns all results in registration order. Slots that were never
// filled are reported as failures.
func (db *DB) Results() []*Result {
	db.Lock()
	defer db.Unlock()

	results := make([]*Result, len(db.results))
	for i, r := range db.results {
		if r == nil {
			r = Fail(db.names[i], "check did not report a result", nil)
		}
		results[i] = r
	}

	return results
}

// Finish records the end of the run.
func (db *DB) Finish() {
	db.Lock()
	defer db.Unlock()

	db.finishedAt = time.Now()
}

func (db *DB) IsFatal() bool {
	return db.fatal
}

func (db *DB) GetNumberOfChecks() int {
	return len(db.names)
}
