package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes engine events to an slog.Logger.
// Useful for development when you want to see engine events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	// Add optional addresses
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote_addr", event.RemoteAddr))
	}
	if event.LocalAddr != "" {
		attrs = append(attrs, slog.String("local_addr", event.LocalAddr))
	}

	// Add type-specific attributes
	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Message != nil:
		attrs = append(attrs,
			slog.Int("length", event.Message.Length),
			slog.Bool("end_of_message", event.Message.EndOfMessage),
		)
		if event.Message.MessageID != "" {
			attrs = append(attrs, slog.String("msg_id", event.Message.MessageID))
		}
		if event.Message.Partial {
			attrs = append(attrs, slog.Bool("partial", true))
		}
		if event.Message.Lifetime != nil {
			attrs = append(attrs, slog.Duration("lifetime", *event.Message.Lifetime))
		}
		if event.Message.Priority != nil {
			attrs = append(attrs, slog.Uint64("priority", uint64(*event.Message.Priority)))
		}
		if event.Message.Expired {
			attrs = append(attrs, slog.Bool("expired", true))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Candidate != nil:
		attrs = append(attrs,
			slog.String("stack", event.Candidate.Stack),
			slog.String("address", event.Candidate.Address),
			slog.String("outcome", event.Candidate.Outcome.String()),
		)
		if event.Candidate.Elapsed > 0 {
			attrs = append(attrs, slog.Duration("elapsed", event.Candidate.Elapsed))
		}
		if event.Candidate.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Candidate.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
		if event.Error.Soft {
			attrs = append(attrs, slog.Bool("soft", true))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "engine", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
