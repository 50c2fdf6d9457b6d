// Package judging implements competition management, the score ledger and
// the ranking view on top of a storage.Repository.
package judging

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/judgehub/internal/auth"
	"github.com/terra-clan/judgehub/internal/metrics"
	"github.com/terra-clan/judgehub/internal/notify"
	"github.com/terra-clan/judgehub/internal/scoring"
	"github.com/terra-clan/judgehub/internal/storage"
)

const defaultNotifyTimeout = 2 * time.Second

// Options configures a Service
type Options struct {
	Policy        scoring.Policy
	NotifyTimeout time.Duration
	Tokens        *auth.TokenIssuer
	Metrics       *metrics.Metrics
}

// Service is the judging core
type Service struct {
	repo          storage.Repository
	notifier      notify.Notifier
	tokens        *auth.TokenIssuer
	metrics       *metrics.Metrics
	policy        scoring.Policy
	notifyTimeout time.Duration
	now           func() time.Time
}

// NewService creates a Service. notifier may be nil.
func NewService(repo storage.Repository, notifier notify.Notifier, opts Options) *Service {
	if opts.Policy == "" {
		opts.Policy = scoring.PolicySum
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}

	return &Service{
		repo:          repo,
		notifier:      notifier,
		tokens:        opts.Tokens,
		metrics:       opts.Metrics,
		policy:        opts.Policy,
		notifyTimeout: opts.NotifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the aggregation policy in use
func (s *Service) Policy() scoring.Policy {
	return s.policy
}

// publish sends e and swallows any failure
func (s *Service) publish(ctx context.Context, e notify.Event) {
	if s.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.metrics.Notifications.WithLabelValues(metrics.ResultError).Inc()
			slog.Warn("notifier panicked", "competition_id", e.CompetitionID, "panic", r)
		}
	}()

	if err := s.notifier.Notify(ctx, e); err != nil {
		s.metrics.Notifications.WithLabelValues(metrics.ResultError).Inc()
		slog.Warn("failed to send notification",
			"competition_id", e.CompetitionID,
			"type", e.Type,
			"error", err,
		)
		return
	}
	s.metrics.Notifications.WithLabelValues(metrics.ResultSent).Inc()
}
