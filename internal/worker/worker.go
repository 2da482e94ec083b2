// Package worker provides the background tasks that keep kycgate's caches
// honest: block watching, DNS refresh and idle-state eviction.
package worker

import "context"

// Worker is a long-running background task.
type Worker interface {
	// Name identifies the worker in logs and errors.
	Name() string
	// Run blocks until ctx is cancelled or an unrecoverable error occurs.
	Run(ctx context.Context) error
}
