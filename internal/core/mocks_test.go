package core

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

var widgetKind = ResourceKind{Group: "example.com", Version: "v1", Plural: "widgets"}

// memRepo implements ResourceRepository in memory.
type memRepo struct {
	mu      sync.Mutex
	records map[string]*Record
	history []HistoryEntry
	failOn  string // operation name that returns an error
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]*Record)}
}

func repoKey(kind ResourceKind, key string) string {
	return kind.Key() + "|" + key
}

func (m *memRepo) Get(_ context.Context, kind ResourceKind, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "get" {
		return nil, &DomainError{Code: ErrorCodeUnavailable, Message: "get failed"}
	}
	rec, ok := m.records[repoKey(kind, key)]
	if !ok {
		return nil, nil
	}
	out := *rec
	out.Resource = rec.Resource.DeepCopy()
	return &out, nil
}

func (m *memRepo) Store(_ context.Context, kind ResourceKind, r *Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "store" {
		return &DomainError{Code: ErrorCodeUnavailable, Message: "store failed"}
	}
	k := repoKey(kind, r.Key())
	rec, ok := m.records[k]
	if !ok {
		rec = &Record{}
		m.records[k] = rec
	}
	rec.Resource = r.DeepCopy()
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *memRepo) MarkApplied(_ context.Context, kind ResourceKind, key string, version Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[repoKey(kind, key)]
	if !ok {
		return &DomainError{Code: ErrorCodeNotFound, Message: key}
	}
	rec.AppliedVersion = version
	return nil
}

func (m *memRepo) Delete(_ context.Context, kind ResourceKind, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, repoKey(kind, key))
	return nil
}

func (m *memRepo) List(_ context.Context, kind ResourceKind) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "list" {
		return nil, &DomainError{Code: ErrorCodeUnavailable, Message: "list failed"}
	}
	var out []*Record
	for k, rec := range m.records {
		if len(k) > len(kind.Key()) && k[:len(kind.Key())+1] == kind.Key()+"|" {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource.Key() < out[j].Resource.Key() })
	return out, nil
}

func (m *memRepo) AppendHistory(_ context.Context, entry HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, entry)
	return nil
}

func (m *memRepo) History(_ context.Context, kind ResourceKind, key string, limit int) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoryEntry
	for i := len(m.history) - 1; i >= 0; i-- {
		e := m.history[i]
		if e.Kind == kind.Key() && e.Key == key {
			out = append(out, e)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) record(kind ResourceKind, key string) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[repoKey(kind, key)]
}

func (m *memRepo) historyLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// memTracker implements VersionTracker in memory and keeps every write.
type memTracker struct {
	mu      sync.Mutex
	cursors map[string]Cursor
	writes  []Cursor
	setErr  error
}

func newMemTracker() *memTracker {
	return &memTracker{cursors: make(map[string]Cursor)}
}

func (m *memTracker) Get(_ context.Context, kind ResourceKind) (Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[kind.Key()], nil
}

func (m *memTracker) Set(_ context.Context, kind ResourceKind, c Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.cursors[kind.Key()] = c
	m.writes = append(m.writes, c)
	return nil
}

func (m *memTracker) cursor(kind ResourceKind) Cursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[kind.Key()]
}

// handlerCall is one recorded plugin invocation.
type handlerCall struct {
	Op      string
	Key     string
	Version Cursor
}

// recordingHandler implements Handler and records every call. outcome,
// when set, decides the result; otherwise every call is Accepted.
type recordingHandler struct {
	mu      sync.Mutex
	calls   []handlerCall
	outcome func(op string, r *Resource) Outcome
	// block, when non-nil, is waited on before returning, ignoring ctx.
	block chan struct{}
}

func (h *recordingHandler) do(op string, r *Resource) Outcome {
	h.mu.Lock()
	h.calls = append(h.calls, handlerCall{Op: op, Key: r.Key(), Version: r.Version()})
	fn := h.outcome
	block := h.block
	h.mu.Unlock()

	if block != nil {
		<-block
	}
	if fn != nil {
		return fn(op, r)
	}
	return Accepted{}
}

func (h *recordingHandler) Create(_ context.Context, r *Resource) Outcome { return h.do("create", r) }
func (h *recordingHandler) Update(_ context.Context, r *Resource) Outcome { return h.do("update", r) }
func (h *recordingHandler) Delete(_ context.Context, r *Resource) Outcome { return h.do("delete", r) }

func (h *recordingHandler) recorded() []handlerCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]handlerCall(nil), h.calls...)
}

func (h *recordingHandler) count(op string) int {
	n := 0
	for _, c := range h.recorded() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// fakeSchemaClient implements SchemaClient with scripted results.
type fakeSchemaClient struct {
	mu        sync.Mutex
	createErr map[string]error
	created   map[string]bool
	// getResults is consumed in order per name; the last entry repeats.
	getResults map[string][]schemaResult
	creates    int
	gets       int
}

type schemaResult struct {
	handle *SchemaHandle
	err    error
}

func newFakeSchemaClient() *fakeSchemaClient {
	return &fakeSchemaClient{
		createErr:  make(map[string]error),
		created:    make(map[string]bool),
		getResults: make(map[string][]schemaResult),
	}
}

func (f *fakeSchemaClient) Create(_ context.Context, def *KindDefinition) (*SchemaHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if err := f.createErr[def.Name]; err != nil {
		return nil, err
	}
	f.created[def.Name] = true
	if _, scripted := f.getResults[def.Name]; scripted {
		return &SchemaHandle{Name: def.Name}, nil
	}
	return &SchemaHandle{Name: def.Name, Established: true}, nil
}

func (f *fakeSchemaClient) Get(_ context.Context, name string) (*SchemaHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	results := f.getResults[name]
	if len(results) == 0 {
		return nil, &DomainError{Code: ErrorCodeNotFound, Message: name}
	}
	res := results[0]
	if len(results) > 1 {
		f.getResults[name] = results[1:]
	}
	return res.handle, res.err
}

// session scripts one Watch call: an open error, or events followed by
// either a peer close or an idle stream.
type session struct {
	openErr error
	events  []WatchEvent
	closed  bool
}

// fakeSource implements WatchSource with a script per kind. Once a
// kind's script is exhausted, Watch returns an idle stream.
type fakeSource struct {
	mu       sync.Mutex
	scripts  map[string][]session
	sinces   map[string][]Cursor
	watchers []*fakeWatcher
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		scripts: make(map[string][]session),
		sinces:  make(map[string][]Cursor),
	}
}

func (f *fakeSource) script(kind ResourceKind, sessions ...session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[kind.Key()] = append(f.scripts[kind.Key()], sessions...)
}

func (f *fakeSource) Watch(_ context.Context, kind ResourceKind, since Cursor) (Watcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := kind.Key()
	f.sinces[key] = append(f.sinces[key], since)

	var s session
	if queue := f.scripts[key]; len(queue) > 0 {
		s = queue[0]
		f.scripts[key] = queue[1:]
	}
	if s.openErr != nil {
		return nil, s.openErr
	}

	w := newFakeWatcher(s.events, s.closed)
	f.watchers = append(f.watchers, w)
	return w, nil
}

func (f *fakeSource) opened(kind ResourceKind) []Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Cursor(nil), f.sinces[kind.Key()]...)
}

func (f *fakeSource) allStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.watchers {
		select {
		case <-w.stop:
		default:
			return false
		}
	}
	return true
}

type fakeWatcher struct {
	ch   chan WatchEvent
	stop chan struct{}
	once sync.Once
}

func newFakeWatcher(events []WatchEvent, closeAfter bool) *fakeWatcher {
	w := &fakeWatcher{ch: make(chan WatchEvent), stop: make(chan struct{})}
	go func() {
		defer close(w.ch)
		for _, ev := range events {
			select {
			case w.ch <- ev:
			case <-w.stop:
				return
			}
		}
		if closeAfter {
			return
		}
		<-w.stop
	}()
	return w
}

func (w *fakeWatcher) ResultChan() <-chan WatchEvent { return w.ch }

func (w *fakeWatcher) Stop() {
	w.once.Do(func() { close(w.stop) })
}

// fakePlugin implements Plugin.
type fakePlugin struct {
	name  string
	kinds []KindSupport
	err   error
}

func (p *fakePlugin) Name() string { return p.name }

func (p *fakePlugin) SupportedKinds() ([]KindSupport, error) {
	return p.kinds, p.err
}

func testCRD(group, plural string, versions ...string) *apiextensionsv1.CustomResourceDefinition {
	crd := &apiextensionsv1.CustomResourceDefinition{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apiextensions.k8s.io/v1", Kind: "CustomResourceDefinition"},
		ObjectMeta: metav1.ObjectMeta{Name: plural + "." + group},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: group,
			Names: apiextensionsv1.CustomResourceDefinitionNames{Plural: plural},
			Scope: apiextensionsv1.NamespaceScoped,
		},
	}
	for i, v := range versions {
		crd.Spec.Versions = append(crd.Spec.Versions, apiextensionsv1.CustomResourceDefinitionVersion{
			Name:    v,
			Served:  true,
			Storage: i == 0,
		})
	}
	return crd
}

func newTestDefinition(t *testing.T, group, plural string) *KindDefinition {
	t.Helper()
	def, err := NewKindDefinition(testCRD(group, plural, "v1"))
	if err != nil {
		t.Fatalf("NewKindDefinition: %v", err)
	}
	return def
}

func widget(name, version string) *Resource {
	return &Resource{
		APIVersion: "example.com/v1",
		Kind:       "Widget",
		Metadata: ObjectMeta{
			Name:            name,
			Namespace:       "default",
			ResourceVersion: version,
		},
		Spec: map[string]any{"color": "blue"},
	}
}

func event(t WatchEventType, name, version string) WatchEvent {
	return WatchEvent{Type: t, Object: widget(name, version)}
}

// listComplete is the bookmark a source sends after the current state.
func listComplete(version string) WatchEvent {
	return WatchEvent{
		Type:         WatchEventBookmark,
		Object:       &Resource{Metadata: ObjectMeta{ResourceVersion: version}},
		ListComplete: true,
	}
}

// eventually polls cond until it holds or a deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
