package core

import "context"

// WatchEventType represents the type of a resource watch event.
// This is a domain-level type that decouples the core layer from
// k8s.io/apimachinery/pkg/watch.EventType.
type WatchEventType string

const (
	WatchEventAdded    WatchEventType = "ADDED"
	WatchEventModified WatchEventType = "MODIFIED"
	WatchEventDeleted  WatchEventType = "DELETED"
	WatchEventBookmark WatchEventType = "BOOKMARK"
	WatchEventError    WatchEventType = "ERROR"
)

// WatchEvent represents a single event from a resource watch stream.
// Object is set for ADDED, MODIFIED and DELETED; Err is set for ERROR.
// A BOOKMARK carries only Object.Metadata.ResourceVersion.
type WatchEvent struct {
	Type   WatchEventType
	Object *Resource
	Err    error
	// ListComplete marks the bookmark that follows the current state
	// of a watch opened without a cursor.
	ListComplete bool
}

// Watcher provides a channel of WatchEvents and a way to stop the
// underlying watch, keeping the core package free of client-go
// dependencies for watch operations.
type Watcher interface {
	// ResultChan returns a channel that receives watch events.
	// The channel is closed when the watch ends or Stop is called.
	ResultChan() <-chan WatchEvent
	// Stop terminates the watch and closes the result channel.
	Stop()
}

// WatchSource opens watch streams against the control plane.
type WatchSource interface {
	// Watch starts streaming changes of kind after since. An empty
	// cursor delivers the current state as ADDED events first, closed
	// by a ListComplete bookmark.
	// Cancelling ctx aborts the underlying request.
	Watch(ctx context.Context, kind ResourceKind, since Cursor) (Watcher, error)
}
