package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/blossom-account/pkg/logger"
)

// Notifier delivers a verification token to the account's email address.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
}

// DefaultTimeout bounds a single dispatched delivery.
const DefaultTimeout = 10 * time.Second

var notificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "account_verification_notifications_total",
		Help: "Dispatched verification notifications by result.",
	},
	[]string{"result"},
)

// Async runs deliveries in the background so callers never wait on or see
// notifier failures. Failures are logged and counted.
type Async struct {
	next    Notifier
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewAsync wraps next. A non-positive timeout uses DefaultTimeout.
func NewAsync(next Notifier, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Async{next: next, timeout: timeout, logger: logger}
}

// Dispatch starts one delivery detached from ctx's cancellation, keeping its
// values for log correlation and tracing.
func (a *Async) Dispatch(ctx context.Context, email, token string) {
	ctx = context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		if err := a.send(ctx, email, token); err != nil {
			notificationsTotal.WithLabelValues("failed").Inc()
			logger.WithContext(ctx, a.logger).ErrorContext(ctx, "send verification email",
				logger.Email("email", email),
				slog.String("error", err.Error()),
			)
			return
		}
		notificationsTotal.WithLabelValues("sent").Inc()
	}()
}

func (a *Async) send(ctx context.Context, email, token string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return a.next.SendVerification(ctx, email, token)
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for notifications: %w", ctx.Err())
	}
}
