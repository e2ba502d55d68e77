package recordstore

import "context"

// DirectSink inserts records synchronously, for serial runs where no writer goroutine is
// needed.
type DirectSink struct {
	Store *Store
	RunID string
}

func (s DirectSink) Put(ctx context.Context, id string, record any) error {
	return s.Store.Insert(ctx, s.RunID, id, record)
}
