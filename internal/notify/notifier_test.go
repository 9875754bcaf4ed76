package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name string
	err  error
	sent []Alert
}

func (f *fakeSender) Send(_ context.Context, alert Alert) error {
	f.sent = append(f.sent, alert)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishFiltersUnsubscribedEvents(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventExecutionProfit}, testLogger())

	require.NoError(t, n.Publish(context.Background(), Alert{Event: EventExecutionAborted}))
	assert.Empty(t, sender.sent)

	require.NoError(t, n.Publish(context.Background(), Alert{Event: EventExecutionProfit}))
	assert.Len(t, sender.sent, 1)
}

func TestPublishEmptySubscriptionAllowsAll(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Publish(context.Background(), Alert{Event: EventExchangeDegraded}))
	assert.Len(t, sender.sent, 1)
}

func TestPublishFailingSenderDoesNotBlockOthers(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("webhook down")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Publish(context.Background(), Alert{Event: EventExecutionLoss, Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.sent, 1)
}

func TestTelegramTextRendering(t *testing.T) {
	text := telegramText(Alert{
		Severity: SeverityCritical,
		Title:    "Execution partially filled",
		Fields:   []Field{{Key: "id", Value: "abc"}, {Key: "legs filled", Value: "1/3"}},
	})

	assert.Contains(t, text, "[CRIT] *Execution partially filled*")
	assert.Contains(t, text, "id: `abc`")
	assert.Contains(t, text, "legs filled: `1/3`")
}

func TestSeverityColor(t *testing.T) {
	assert.Equal(t, discordGreen, severityColor(SeverityInfo))
	assert.Equal(t, discordYellow, severityColor(SeverityWarning))
	assert.Equal(t, discordRed, severityColor(SeverityCritical))
}
