package events

import (
	"log/slog"

	"reservehook/core/types"
)

// attributeProvider is implemented by events that can render themselves as a
// flat attribute map.
type attributeProvider interface {
	Event() *types.Event
}

// LogEmitter writes every emitted event to the structured logger.
type LogEmitter struct {
	log *slog.Logger
}

func NewLogEmitter(log *slog.Logger) *LogEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(evt Event) {
	if e == nil || evt == nil {
		return
	}
	args := []any{"event", evt.EventType()}
	if provider, ok := evt.(attributeProvider); ok {
		if rendered := provider.Event(); rendered != nil {
			for key, value := range rendered.Attributes {
				args = append(args, key, value)
			}
		}
	}
	e.log.Info("ledger event", args...)
}
