// Package sink fans finished session results out to the configured
// destinations.
package sink

import (
	"context"

	"github.com/botsense/botsense/internal/session"
)

type Sink interface {
	Start(ctx context.Context) error
	Enqueue(res session.Result) error
	Close() error
	Name() string // Returns the sink name for metrics and logging
}
