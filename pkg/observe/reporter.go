// Package observe forwards swallowed errors to an external error tracker.
package observe

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/xhad/verity/internal/types"
)

// Nop discards everything.
type Nop struct{}

func (Nop) Capture(error, map[string]string) {}
func (Nop) Flush(time.Duration) bool           { return true }

// SentryReporter sends errors to Sentry through its own hub.
type SentryReporter struct {
	hub *sentry.Hub
}

var (
	_ types.Reporter = Nop{}
	_ types.Reporter = (*SentryReporter)(nil)
)

// Reporter is what callers hold: something that captures and can be flushed
// on shutdown.
type Reporter interface {
	types.Reporter
	Flush(timeout time.Duration) bool
}

// New returns a Sentry-backed reporter when dsn is set, otherwise Nop.
func New(dsn, environment, release string) (Reporter, error) {
	if dsn == "" {
		return Nop{}, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *SentryReporter) Capture(err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}
