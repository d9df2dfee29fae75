package httpserver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ShutdownTimeout controls how long to wait for graceful shutdowns.
var ShutdownTimeout = 10 * time.Second

// Step is one named piece of teardown.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Teardown runs steps in order under one shared ShutdownTimeout deadline.
// Every step runs even when an earlier one fails; failures are joined.
func Teardown(ctx context.Context, steps ...Step) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()

	var errs []error
	for _, step := range steps {
		if step.Fn == nil {
			continue
		}
		if err := step.Fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
