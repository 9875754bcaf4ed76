// Package notify delivers engine alerts (execution outcomes, venue
// degradation) to operator channels. Each channel renders an Alert in its own
// native format; the Notifier handles fan-out and event filtering.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Severity classifies how urgently an operator should look at an alert.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

// Field is one structured detail attached to an alert.
type Field struct {
	Key   string
	Value string
}

// Alert is one engine event bound for the operator channels. Event is the
// filterable type key (the notify.events config values); Fields carry the
// structured payload each sender formats for its channel.
type Alert struct {
	Event    string
	Severity Severity
	Title    string
	Fields   []Field
}

// Sender delivers alerts over one channel.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
	// Name identifies the channel in logs, e.g. "telegram".
	Name() string
}

// Notifier fans alerts out to the configured senders, dropping events the
// operator has not subscribed to.
type Notifier struct {
	senders []Sender
	events  map[string]bool // subscribed event types; empty means all
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. events
// lists the subscribed alert types; an empty list subscribes to everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	subscribed := make(map[string]bool, len(events))
	for _, e := range events {
		subscribed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  subscribed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Publish delivers the alert to every sender, provided its event type passes
// the subscription filter. A failing channel never blocks the others; all
// failures come back as one combined error.
func (n *Notifier) Publish(ctx context.Context, alert Alert) error {
	if len(n.events) > 0 && !n.events[alert.Event] {
		n.logger.DebugContext(ctx, "alert not subscribed",
			slog.String("event", alert.Event),
		)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.ErrorContext(ctx, "alert delivery failed",
				slog.String("sender", s.Name()),
				slog.String("event", alert.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("event", alert.Event),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
