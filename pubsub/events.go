package pubsub

import "context"

const (
	// DocumentIngestedEvent fires after a file's chunks are stored.
	DocumentIngestedEvent EventType = "document_ingested"
	// DocumentDeletedEvent fires after entries for a source are removed.
	DocumentDeletedEvent EventType = "document_deleted"
	// CollectionClearedEvent fires after a collection is emptied.
	CollectionClearedEvent EventType = "collection_cleared"
	// SearchCompletedEvent fires after a query returns.
	SearchCompletedEvent EventType = "search_completed"
)

// Subscriber hands out read-only event channels.
type Subscriber[T any] interface {
	// Subscribe returns a channel that closes when ctx is done.
	Subscribe(context.Context) <-chan Event[T]
}

type (
	// EventType identifies the kind of event.
	EventType string

	// Event is one occurrence in a resource's lifecycle.
	Event[T any] struct {
		Type    EventType
		Payload T
	}

	// Publisher delivers events to all subscribers.
	Publisher[T any] interface {
		Publish(EventType, T)
	}
)

// KnowledgeEvent is the payload published by the retrieval pipeline.
type KnowledgeEvent struct {
	Collection string
	Source     string
	Chunks     int
	Query      string
	Results    int
}
