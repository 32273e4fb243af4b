package audit

import (
	"time"

	"go.uber.org/zap"

	"fooocus-orchestrator/internal/tracing"
)

// Event names a task- or worker-lifecycle occurrence worth auditing.
// Audit scope is narrowed to the task and worker lifecycles: there is
// no multi-tenant user or resource model left to audit against.
type Event string

const (
	EventTaskSubmitted Event = "task.submitted"
	EventTaskCompleted Event = "task.completed"
	EventTaskFailed    Event = "task.failed"
	EventTaskCanceled  Event = "task.canceled"
	EventWorkerReady   Event = "worker.ready"
	EventWorkerUnusable Event = "worker.unusable"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Logger writes audit events as structured zap log lines; there is no
// persistence layer, since a task's lifecycle already lives in the
// Task Coordinator's in-memory state for the duration it matters.
type Logger struct {
	logger  *zap.Logger
	enabled bool
}

// NewLogger builds an audit Logger. When enabled is false, every Log
// call is a no-op, matching cfg.Audit.Enabled.
func NewLogger(logger *zap.Logger, enabled bool) *Logger {
	return &Logger{logger: logger, enabled: enabled}
}

func (l *Logger) Log(event Event, severity Severity, taskID, action, result string, details map[string]interface{}) {
	if !l.enabled {
		return
	}

	fields := []zap.Field{
		zap.String("event", string(event)),
		zap.String("severity", string(severity)),
		zap.String("task_id", taskID),
		zap.String("action", action),
		zap.String("result", result),
		zap.Time("timestamp", time.Now()),
	}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}

	switch severity {
	case SeverityWarning:
		l.logger.Warn("audit event", fields...)
	case SeverityError:
		l.logger.Error("audit event", fields...)
	default:
		l.logger.Info("audit event", fields...)
	}
}

func (l *Logger) TaskSubmitted(taskID string, totalImages, gpuCount int) {
	l.Log(EventTaskSubmitted, SeverityInfo, taskID, "submit", "accepted", map[string]interface{}{
		"total_images": totalImages,
		"gpu_count":    gpuCount,
	})
}

func (l *Logger) TaskCompleted(taskID string, successImages, totalImages int, duration time.Duration) {
	l.Log(EventTaskCompleted, SeverityInfo, taskID, "finalize", "finished", map[string]interface{}{
		"success_images": successImages,
		"total_images":   totalImages,
		"duration":       duration.String(),
	})
}

func (l *Logger) TaskFailed(taskID string, errs []string, duration time.Duration) {
	l.Log(EventTaskFailed, SeverityError, taskID, "finalize", "error", map[string]interface{}{
		"errors":   errs,
		"duration": duration.String(),
	})
}

func (l *Logger) TaskCanceled(taskID string) {
	l.Log(EventTaskCanceled, SeverityWarning, taskID, "stop", "canceled", nil)
}

func (l *Logger) WorkerReady(device int) {
	l.Log(EventWorkerReady, SeverityInfo, "", "probe", "ready", map[string]interface{}{
		"device": device,
	})
}

func (l *Logger) WorkerUnusable(device int) {
	l.Log(EventWorkerUnusable, SeverityError, "", "probe", "unusable", map[string]interface{}{
		"device": device,
	})
}

// WithCorrelation tags every field emitted by this logger with the
// correlation/trace IDs carried on ctx.
func (l *Logger) WithCorrelation(corrID, traceID string) *Logger {
	fields := []zap.Field{}
	if corrID != "" {
		fields = append(fields, zap.String(tracing.CorrelationIDKey, corrID))
	}
	if traceID != "" {
		fields = append(fields, zap.String(tracing.TraceIDKey, traceID))
	}
	return &Logger{logger: l.logger.With(fields...), enabled: l.enabled}
}
