package recorder

import "context"

// NoopRecorder is used when no journal is configured.
type NoopRecorder struct{}

func (NoopRecorder) RecordOperation(*OperationEvent) error { return nil }

func (NoopRecorder) Recent(context.Context, int) ([]OperationEvent, error) { return nil, nil }

func (NoopRecorder) Close() error { return nil }
