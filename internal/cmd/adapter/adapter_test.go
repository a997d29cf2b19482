package adapter

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/otterscale/resource-adapter/internal/core"
	"github.com/otterscale/resource-adapter/internal/providers/sqlite"
)

var widgetKind = core.ResourceKind{Group: "example.com", Version: "v1", Plural: "widgets"}

// stubSchemas implements core.SchemaClient. Every create succeeds
// established unless failing names it.
type stubSchemas struct {
	failing map[string]error
}

func (s *stubSchemas) Create(_ context.Context, def *core.KindDefinition) (*core.SchemaHandle, error) {
	if err := s.failing[def.Name]; err != nil {
		return nil, err
	}
	return &core.SchemaHandle{Name: def.Name, Established: true}, nil
}

func (s *stubSchemas) Get(_ context.Context, name string) (*core.SchemaHandle, error) {
	return nil, &core.DomainError{Code: core.ErrorCodeNotFound, Message: name}
}

// stubSource implements core.WatchSource: each watch delivers the
// kind's events once and then idles until stopped.
type stubSource struct {
	mu     sync.Mutex
	events map[string][]core.WatchEvent
}

func (s *stubSource) Watch(_ context.Context, kind core.ResourceKind, _ core.Cursor) (core.Watcher, error) {
	s.mu.Lock()
	events := s.events[kind.Key()]
	delete(s.events, kind.Key())
	s.mu.Unlock()

	w := &stubWatcher{ch: make(chan core.WatchEvent), stop: make(chan struct{})}
	go func() {
		defer close(w.ch)
		for _, ev := range events {
			select {
			case w.ch <- ev:
			case <-w.stop:
				return
			}
		}
		<-w.stop
	}()
	return w, nil
}

type stubWatcher struct {
	ch   chan core.WatchEvent
	stop chan struct{}
	once sync.Once
}

func (w *stubWatcher) ResultChan() <-chan core.WatchEvent { return w.ch }
func (w *stubWatcher) Stop()                              { w.once.Do(func() { close(w.stop) }) }

type acceptAll struct{}

func (acceptAll) Create(context.Context, *core.Resource) core.Outcome { return core.Accepted{} }
func (acceptAll) Update(context.Context, *core.Resource) core.Outcome { return core.Accepted{} }
func (acceptAll) Delete(context.Context, *core.Resource) core.Outcome { return core.Accepted{} }

type stubPlugin struct {
	defs []*core.KindDefinition
}

func (stubPlugin) Name() string { return "stub" }

func (p stubPlugin) SupportedKinds() ([]core.KindSupport, error) {
	out := make([]core.KindSupport, 0, len(p.defs))
	for _, d := range p.defs {
		out = append(out, core.KindSupport{Definition: d, Handler: acceptAll{}})
	}
	return out, nil
}

func newDefinition(t *testing.T, plural string) *core.KindDefinition {
	t.Helper()
	def, err := core.NewKindDefinition(&apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: metav1.ObjectMeta{Name: plural + ".example.com"},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: "example.com",
			Names: apiextensionsv1.CustomResourceDefinitionNames{Plural: plural},
			Scope: apiextensionsv1.NamespaceScoped,
			Versions: []apiextensionsv1.CustomResourceDefinitionVersion{
				{Name: "v1", Served: true, Storage: true},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewKindDefinition: %v", err)
	}
	return def
}

type testEnv struct {
	schemas  *stubSchemas
	source   *stubSource
	repo     core.ResourceRepository
	tracker  core.VersionTracker
	registry *core.Registry
	manager  *core.LifecycleManager
}

// newTestEnv wires a real lifecycle manager over sqlite stores with
// widgets and gadgets registered.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "adapter.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	registry, err := core.NewRegistry(stubPlugin{defs: []*core.KindDefinition{
		newDefinition(t, "widgets"),
		newDefinition(t, "gadgets"),
	}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	env := &testEnv{
		schemas:  &stubSchemas{failing: map[string]error{}},
		source:   &stubSource{events: map[string][]core.WatchEvent{}},
		repo:     sqlite.NewResourceRepo(db),
		tracker:  sqlite.NewVersionTracker(db),
		registry: registry,
	}
	registrar := core.NewSchemaRegistrar(env.schemas, core.RegistrarConfig{})
	env.manager = core.NewLifecycleManager(registrar, env.source, env.repo, env.tracker, core.LoopConfig{
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = env.manager.Stop(ctx)
	})
	return env
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	_ = e.manager.Start(context.Background(), e.registry)
}

func (e *testEnv) waitState(t *testing.T, kind string, state core.LoopState) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := e.manager.Status(kind); ok && s.State == state {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("kind %s never reached %s", kind, state)
}

func widgetEvent(typ core.WatchEventType, name, version string) core.WatchEvent {
	return core.WatchEvent{Type: typ, Object: &core.Resource{
		APIVersion: "example.com/v1",
		Kind:       "Widget",
		Metadata:   core.ObjectMeta{Name: name, Namespace: "default", ResourceVersion: version},
		Spec:       map[string]any{"color": "blue"},
	}}
}
