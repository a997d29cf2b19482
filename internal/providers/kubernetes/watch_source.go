package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/otterscale/resource-adapter/internal/core"
)

type watchSource struct {
	kubernetes *Kubernetes
	versions   core.DiscoveryClient
	log        *slog.Logger
}

// NewWatchSource returns a core.WatchSource over the dynamic client.
// versions decides whether a watch without a cursor may stream the
// initial state; pass a cached client, the lookup runs on every
// resync.
func NewWatchSource(kubernetes *Kubernetes, versions core.DiscoveryClient) core.WatchSource {
	return &watchSource{
		kubernetes: kubernetes,
		versions:   versions,
		log:        slog.Default().With("component", "watch-source"),
	}
}

var _ core.WatchSource = (*watchSource)(nil)

// Watch opens a cluster-wide watch on kind. A non-empty since resumes
// after that version. An empty since asks for the current state first:
// on servers that support streaming lists it arrives as ADDED events
// on the same stream, otherwise it is listed and the watch starts at
// the list's version. Either way a ListComplete bookmark follows it.
func (s *watchSource) Watch(ctx context.Context, kind core.ResourceKind, since core.Cursor) (core.Watcher, error) {
	resource := s.kubernetes.dynamic.Resource(kind.GroupVersionResource())
	opts := metav1.ListOptions{
		Watch:               true,
		AllowWatchBookmarks: true,
		ResourceVersion:     since.String(),
	}

	var initial []core.WatchEvent
	if since.IsZero() {
		if s.streamingLists(ctx) {
			sendInitialEvents := true
			opts.ResourceVersionMatch = metav1.ResourceVersionMatchNotOlderThan
			opts.SendInitialEvents = &sendInitialEvents
		} else {
			list, err := resource.List(ctx, metav1.ListOptions{})
			if err != nil {
				return nil, wrapK8sError(err)
			}
			initial = listedEvents(list)
			opts.ResourceVersion = list.GetResourceVersion()
		}
	}

	w, err := resource.Watch(ctx, opts)
	if err != nil {
		return nil, wrapK8sError(err)
	}
	return newWatcher(w, initial...), nil
}

// listedEvents replays a list as ADDED events closed by the bookmark a
// streaming list would have sent.
func listedEvents(list *unstructured.UnstructuredList) []core.WatchEvent {
	out := make([]core.WatchEvent, 0, len(list.Items)+1)
	for i := range list.Items {
		out = append(out, convertEvent(watch.Event{Type: watch.Added, Object: &list.Items[i]}))
	}
	return append(out, core.WatchEvent{
		Type: core.WatchEventBookmark,
		Object: &core.Resource{
			Metadata: core.ObjectMeta{ResourceVersion: list.GetResourceVersion()},
		},
		ListComplete: true,
	})
}

func (s *watchSource) streamingLists(ctx context.Context) bool {
	info, err := s.versions.ServerVersion(ctx)
	if err != nil {
		s.log.Debug("server version unavailable, not streaming initial events", "error", err)
		return false
	}
	ok, err := supportsWatchList(info)
	if err != nil {
		s.log.Debug("unparseable server version", "version", info.String(), "error", err)
		return false
	}
	return ok
}

// watcher translates a watch.Interface into core watch events. Its
// result channel is unbuffered, so the upstream stream is only read as
// fast as the loop dispatches.
type watcher struct {
	inner    watch.Interface
	initial  []core.WatchEvent
	out      chan core.WatchEvent
	stop     chan struct{}
	stopOnce sync.Once
}

// newWatcher delivers initial before anything read from inner.
func newWatcher(inner watch.Interface, initial ...core.WatchEvent) *watcher {
	w := &watcher{
		inner:   inner,
		initial: initial,
		out:     make(chan core.WatchEvent),
		stop:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *watcher) ResultChan() <-chan core.WatchEvent {
	return w.out
}

func (w *watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.inner.Stop()
	})
}

func (w *watcher) run() {
	defer close(w.out)

	for _, ev := range w.initial {
		select {
		case w.out <- ev:
		case <-w.stop:
			return
		}
	}

	in := w.inner.ResultChan()
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			select {
			case w.out <- convertEvent(ev):
			case <-w.stop:
				return
			}
		}
	}
}

func convertEvent(ev watch.Event) core.WatchEvent {
	switch ev.Type {
	case watch.Error:
		return core.WatchEvent{Type: core.WatchEventError, Err: statusError(ev)}

	case watch.Bookmark:
		u, ok := ev.Object.(*unstructured.Unstructured)
		if !ok {
			return decodeFailure(fmt.Sprintf("bookmark carries %T", ev.Object), nil)
		}
		return core.WatchEvent{
			Type: core.WatchEventBookmark,
			Object: &core.Resource{
				Metadata: core.ObjectMeta{ResourceVersion: u.GetResourceVersion()},
			},
			ListComplete: u.GetAnnotations()[metav1.InitialEventsAnnotationKey] == "true",
		}

	case watch.Added, watch.Modified, watch.Deleted:
		u, ok := ev.Object.(*unstructured.Unstructured)
		if !ok {
			return decodeFailure(fmt.Sprintf("%s event carries %T", ev.Type, ev.Object), nil)
		}
		res, err := core.ResourceFromObject(u.Object)
		if err != nil {
			return decodeFailure(fmt.Sprintf("%s event", ev.Type), err)
		}
		return core.WatchEvent{Type: core.WatchEventType(ev.Type), Object: res}

	default:
		return decodeFailure(fmt.Sprintf("unknown event type %q", ev.Type), nil)
	}
}

// statusError recovers the API status carried by an ERROR event.
func statusError(ev watch.Event) error {
	if ev.Object == nil {
		return &core.DecodeError{Reason: "error event without status"}
	}

	err := apierrors.FromObject(ev.Object)
	if apierrors.IsUnexpectedObjectError(err) {
		return &core.DecodeError{Reason: "error event without status", Cause: err}
	}
	return wrapK8sError(err)
}

func decodeFailure(reason string, cause error) core.WatchEvent {
	return core.WatchEvent{
		Type: core.WatchEventError,
		Err:  &core.DecodeError{Reason: reason, Cause: cause},
	}
}
