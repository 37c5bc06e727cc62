package notify

import "go.uber.org/zap"

// LogNotifier writes every event to a zap logger. Failures log at warn level.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that logs to logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("run")}
}

// Notify logs the event.
func (n *LogNotifier) Notify(e Event) {
	fields := []zap.Field{zap.String("run_id", e.RunID)}
	if e.Phase != "" {
		fields = append(fields, zap.String("phase", e.Phase))
	}
	if e.TaskID != "" {
		fields = append(fields, zap.String("task_id", e.TaskID), zap.String("unit", string(e.UnitType)))
	}
	if e.Duration > 0 {
		fields = append(fields, zap.Duration("duration", e.Duration))
	}
	if e.Message != "" {
		fields = append(fields, zap.String("message", e.Message))
	}

	switch e.Type {
	case EventPhaseChanged:
		n.logger.Info("phase changed", fields...)
	case EventTaskStarted:
		n.logger.Info("task started", fields...)
	case EventTaskCompleted:
		n.logger.Info("task completed", fields...)
	case EventTaskFailed:
		fields = append(fields, zap.Bool("blocked", e.Blocked), zap.Error(e.Error))
		n.logger.Warn("task failed", fields...)
	default:
		n.logger.Debug(string(e.Type), fields...)
	}
}
