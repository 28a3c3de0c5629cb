// Package notify delivers one-time codes to destinations.
//
// The transport is an injected collaborator: the OTP service sees only the
// Notifier interface. Which implementation runs (console for dev, Twilio for
// real SMS) is chosen once at construction from configuration.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sentinelpay/fraudgate/internal/logging"
	"github.com/sentinelpay/fraudgate/internal/metrics"
)

// ErrSendFailed wraps any delivery failure. Callers that need to roll back
// state on failed delivery match on this.
var ErrSendFailed = errors.New("notification send failed")

// Notifier delivers a message to a destination address. Implementations must
// honor ctx cancellation; a send may block only as long as the context allows.
type Notifier interface {
	// Send delivers message to destination. Name-addressed, fire-once; no
	// delivery receipt beyond the error return.
	Send(ctx context.Context, destination, message string) error
	// Name identifies the implementation in logs and metrics.
	Name() string
}

// ConsoleNotifier logs the message instead of delivering it. Dev mode only;
// config validation refuses it in production.
type ConsoleNotifier struct {
	logger *slog.Logger
}

// NewConsoleNotifier creates a console notifier.
func NewConsoleNotifier(logger *slog.Logger) *ConsoleNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleNotifier{logger: logger}
}

// Name implements Notifier.
func (c *ConsoleNotifier) Name() string { return "console" }

// Send logs the message. The destination is masked even here; dev logs end
// up in shared terminals.
func (c *ConsoleNotifier) Send(ctx context.Context, destination, message string) error {
	if err := ctx.Err(); err != nil {
		metrics.NotifySendsTotal.WithLabelValues(c.Name(), "error").Inc()
		return err
	}
	c.logger.Info("dev sms",
		"to", logging.MaskDestination(destination),
		"message", message,
	)
	metrics.NotifySendsTotal.WithLabelValues(c.Name(), "ok").Inc()
	return nil
}
