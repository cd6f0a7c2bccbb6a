package world

import (
	"errors"

	"evita/internal/protocol"
)

// EventLoggers fans one event out to several loggers. Nil entries are skipped
// and a failing logger does not stop delivery to the rest.
type EventLoggers []EventLogger

func (ls EventLoggers) WriteEvent(ev protocol.Event) error {
	var errs []error
	for _, l := range ls {
		if l == nil {
			continue
		}
		if err := l.WriteEvent(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
