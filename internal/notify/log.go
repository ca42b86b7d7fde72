package notify

import "github.com/rs/zerolog"

// Log writes one line per event.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a logging sink.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "events").Logger()}
}

func (l *Log) Notify(e Event) {
	ev := l.logger.Info()
	if e.Cause == LoadFailed {
		ev = l.logger.Warn().Err(e.Err)
	}
	if e.Song != nil {
		ev = ev.Str("key", e.Song.Key())
		if by := e.Song.RequestedBy(); by != "" {
			ev = ev.Str("requested_by", by)
		}
	}
	ev.Msg(e.String())
}
