// Package messaging provides abstractions for publishing analysis events to
// a message broker, without coupling callers to a specific implementation.
package messaging

import "context"

// Subject constants for the Athena message bus.
// Follow the pattern: {domain}.{resource}.{action}
const (
	// Analysis lifecycle subjects - published by the analysis service
	SubjectAnalysisCompleted = "athena.analysis.completed" // Analysis finished successfully
	SubjectAnalysisFailed    = "athena.analysis.failed"    // Analysis could not complete

	// Indexing subjects - published when documents enter the vector store
	SubjectLogsIndexed = "athena.logs.indexed" // Batch of log documents indexed
)

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends a raw message to the specified subject. Fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishJSON marshals data to JSON and publishes it to the subject.
	PublishJSON(ctx context.Context, subject string, data any) error

	// Close releases any resources held by the publisher.
	Close() error
}

// NopPublisher discards everything. Used when eventing is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte) error  { return nil }
func (NopPublisher) PublishJSON(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                                   { return nil }
