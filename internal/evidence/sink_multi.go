package evidence

import (
	"context"
	"errors"
)

// MultiSink fans one entry out to several secondary sinks. Each sink gets its
// attempt regardless of the others; errors are joined for the writer's single
// warning path.
type MultiSink []Sink

// Publish sends the entry to every sink.
func (m MultiSink) Publish(ctx context.Context, entry Entry) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Publish(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
