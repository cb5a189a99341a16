package notify

import (
	"context"

	"github.com/wisdmlabs/certverify/internal/certificate"
	"go.uber.org/zap"
)

// LogNotifier records generated events to the structured log. It is the
// default notifier when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// RecordGenerated implements certificate.Notifier.
func (n *LogNotifier) RecordGenerated(_ context.Context, event certificate.GeneratedEvent) {
	n.logger.Info("certificate record generated",
		zap.String("event_id", event.EventID),
		zap.String("csuid", event.CSUID),
		zap.String("source_type", event.Record.SourceType.String()),
		zap.Uint64("source_id", event.Record.SourceID),
		zap.Uint64("recipient_id", event.Record.RecipientID))
}
