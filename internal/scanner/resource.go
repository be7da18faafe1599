package scanner

import (
	"context"

	"github.com/pkg/errors"
)

// Resource is a collaborator shared by the whole run, such as a database
// connection pool. It is set up once before the first check and closed once
// after teardown.
type Resource interface {
	Name() string
	Setup(ctx context.Context) error
	Close()
}

// setupResources sets up the resources in order. On failure the resources
// that were already set up are closed again.
func setupResources(ctx context.Context, resources []Resource) error {
	for i, r := range resources {
		if err := r.Setup(ctx); err != nil {
			closeResources(resources[:i])
			return errors.Wrapf(err, "couldn't set up %s", r.Name())
		}
	}

	return nil
}

func closeResources(resources []Resource) {
	for i := len(resources) - 1; i >= 0; i-- {
		resources[i].Close()
	}
}
