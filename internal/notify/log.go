package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/dorank/internal/stats"
)

// LogNotifier writes messages to the log. It stands in for a chat sink during
// local runs where no bot token is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier wires a zap logger to the Notifier interface.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs msg using structured fields.
func (n *LogNotifier) Notify(_ context.Context, msg stats.Message) error {
	fields := []zap.Field{
		zap.String("channel", msg.Channel),
		zap.String("user", msg.User),
		zap.String("visibility", string(msg.Visibility)),
	}
	if msg.IsError() {
		n.logger.Warn("cycle failed", append(fields, zap.String("error", msg.ErrorText))...)
		return nil
	}
	fields = append(fields,
		zap.String("cycle_id", msg.Report.CycleID),
		zap.String("trigger", string(msg.Report.Trigger)),
	)
	for _, s := range msg.Report.Sections {
		fields = append(fields, zap.Float64(s.Metric, s.Observed))
	}
	n.logger.Info("cycle report", fields...)
	return nil
}
