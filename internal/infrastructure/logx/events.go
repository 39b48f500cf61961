package logx

import (
	"valutatrade-hub/internal/application"

	"go.uber.org/zap"
)

// EventSink logs every engine operation as one structured entry. It is the
// default subscriber for engine events; persistence sinks can replace it.
type EventSink struct {
	Log *zap.Logger
}

var _ application.EventSink = (*EventSink)(nil)

func NewEventSink(log *zap.Logger) *EventSink {
	if log == nil {
		log = L()
	}
	return &EventSink{Log: log}
}

func (s *EventSink) Emit(e application.Event) {
	fields := []zap.Field{
		zap.String("action", e.Action),
		zap.String("user", e.User),
		zap.String("currency", e.Currency),
		zap.String("amount", e.Amount.String()),
		zap.String("status", e.Status),
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
		s.Log.Warn("operation", fields...)
		return
	}
	s.Log.Info("operation", fields...)
}
