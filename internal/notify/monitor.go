package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openarb/arbd/internal/domain"
)

// Event types emitted by the engine monitor. Operators can filter on these
// via the notify.events config key.
const (
	EventExecutionProfit  = "execution.profit"
	EventExecutionLoss    = "execution.loss"
	EventExecutionPartial = "execution.partial"
	EventExecutionAborted = "execution.aborted"
	EventExchangeDegraded = "exchange.degraded"
)

// deliverTimeout bounds each fire-and-forget delivery.
const deliverTimeout = 15 * time.Second

// Monitor implements domain.Monitor on top of the Notifier. Deliveries run in
// their own goroutine with their own deadline; the engine never blocks on an
// operator channel.
type Monitor struct {
	notifier *Notifier
	logger   *slog.Logger
}

// NewMonitor creates a Monitor over the given Notifier.
func NewMonitor(notifier *Notifier, logger *slog.Logger) *Monitor {
	return &Monitor{
		notifier: notifier,
		logger:   logger.With(slog.String("component", "monitor")),
	}
}

// Report delivers a terminal execution record to the operator channels.
func (m *Monitor) Report(_ context.Context, rec domain.ExecutionRecord) {
	event, title, severity := executionAlert(rec.Outcome)

	fields := []Field{
		{Key: "id", Value: rec.ID},
		{Key: "kind", Value: string(rec.Kind)},
		{Key: "legs filled", Value: fmt.Sprintf("%d/%d", rec.FilledLegs(), len(rec.Legs))},
		{Key: "realized", Value: fmt.Sprintf("%.4f", rec.RealizedProfit)},
	}
	if rec.Reason != "" {
		fields = append(fields, Field{Key: "reason", Value: rec.Reason})
	}
	if rec.UnwindRequired {
		severity = SeverityCritical
		fields = append(fields, Field{Key: "unwind", Value: "REQUIRED"})
	}

	m.deliver(Alert{Event: event, Severity: severity, Title: title, Fields: fields})
}

// ReportDegraded alerts the operator that an exchange's circuit breaker
// opened and the venue is excluded from trading.
func (m *Monitor) ReportDegraded(_ context.Context, exchangeID, reason string) {
	alert := Alert{
		Event:    EventExchangeDegraded,
		Severity: SeverityCritical,
		Title:    "Exchange degraded: " + exchangeID,
		Fields:   []Field{{Key: "exchange", Value: exchangeID}},
	}
	if reason != "" {
		alert.Fields = append(alert.Fields, Field{Key: "reason", Value: reason})
	}
	m.deliver(alert)
}

func (m *Monitor) deliver(alert Alert) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		defer cancel()
		if err := m.notifier.Publish(ctx, alert); err != nil {
			m.logger.Warn("notification delivery failed",
				slog.String("event", alert.Event),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func executionAlert(outcome domain.Outcome) (event, title string, severity Severity) {
	switch outcome {
	case domain.OutcomeProfit:
		return EventExecutionProfit, "Execution closed in profit", SeverityInfo
	case domain.OutcomeLoss:
		return EventExecutionLoss, "Execution closed at a loss", SeverityWarning
	case domain.OutcomePartial:
		return EventExecutionPartial, "Execution partially filled", SeverityCritical
	default:
		return EventExecutionAborted, "Execution aborted", SeverityInfo
	}
}

// Compile-time interface check.
var _ domain.Monitor = (*Monitor)(nil)
