package scanner

import (
	"context"

	"github.com/mailoreply/smoketest/internal/db"
)

// Func performs one check and returns its verdict. Implementations should
// honour ctx for every external call.
type Func func(ctx context.Context, env *Env) *db.Result

// Check is a named unit of verification. DependsOn lists the names of
// earlier registered checks that must pass before this one is invoked.
type Check struct {
	Name      string
	DependsOn []string
	Run       Func
}

func NewCheck(name string, run Func, dependsOn ...string) *Check {
	return &Check{
		Name:      name,
		DependsOn: dependsOn,
		Run:       run,
	}
}
