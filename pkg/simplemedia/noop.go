package simplemedia

import "context"

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// MediaFileCreated does nothing and returns nil
func (n *NoopEventSink) MediaFileCreated(ctx context.Context, file *MediaFile) error {
	return nil
}

// MediaFileDeduplicated does nothing and returns nil
func (n *NoopEventSink) MediaFileDeduplicated(ctx context.Context, file *MediaFile, companyID string) error {
	return nil
}
