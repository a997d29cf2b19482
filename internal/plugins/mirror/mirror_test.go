package mirror

import (
	"context"
	"errors"
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes/fake"
	clienttesting "k8s.io/client-go/testing"

	"github.com/otterscale/resource-adapter/internal/core"
)

func mirrorResource(name string, spec map[string]any) *core.Resource {
	return &core.Resource{
		APIVersion: "adapter.otterscale.io/v1alpha1",
		Kind:       "ConfigMirror",
		Metadata:   core.ObjectMeta{Name: name, Namespace: "team-a", ResourceVersion: "7"},
		Spec:       spec,
	}
}

func handlerFor(t *testing.T, p *Plugin) core.Handler {
	t.Helper()
	kinds, err := p.SupportedKinds()
	if err != nil {
		t.Fatalf("SupportedKinds: %v", err)
	}
	return kinds[0].Handler
}

func TestSupportedKinds(t *testing.T) {
	p := New(fake.NewSimpleClientset(), "")

	kinds, err := p.SupportedKinds()
	if err != nil {
		t.Fatalf("SupportedKinds: %v", err)
	}
	if len(kinds) != 1 {
		t.Fatalf("len = %d, want 1", len(kinds))
	}

	def := kinds[0].Definition
	want := core.ResourceKind{Group: "adapter.otterscale.io", Version: "v1alpha1", Plural: "configmirrors"}
	if def.Kind != want {
		t.Fatalf("Kind = %+v, want %+v", def.Kind, want)
	}
	if def.Name != "configmirrors.adapter.otterscale.io" || !def.Namespaced {
		t.Fatalf("definition = %+v", def)
	}
}

func TestCreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	h := handlerFor(t, New(client, "mirrors"))

	r := mirrorResource("app-config", map[string]any{"data": map[string]any{"LOG_LEVEL": "info"}})

	if out := h.Create(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("Create = %#v", out)
	}
	cm, err := client.CoreV1().ConfigMaps("mirrors").Get(ctx, "app-config", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("configmap not created: %v", err)
	}
	if cm.Data["LOG_LEVEL"] != "info" {
		t.Fatalf("data = %v", cm.Data)
	}
	if cm.Labels[labelSource] != "team-a.app-config" {
		t.Fatalf("labels = %v", cm.Labels)
	}

	// Repeating a create converges to the same state.
	if out := h.Create(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("repeated Create = %#v", out)
	}

	r.Spec = map[string]any{"data": map[string]any{"LOG_LEVEL": "debug"}}
	if out := h.Update(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("Update = %#v", out)
	}
	cm, _ = client.CoreV1().ConfigMaps("mirrors").Get(ctx, "app-config", metav1.GetOptions{})
	if cm.Data["LOG_LEVEL"] != "debug" {
		t.Fatalf("data after update = %v", cm.Data)
	}

	if out := h.Delete(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("Delete = %#v", out)
	}
	if _, err := client.CoreV1().ConfigMaps("mirrors").Get(ctx, "app-config", metav1.GetOptions{}); err == nil {
		t.Fatal("configmap survived Delete")
	}

	// Deleting again is accepted.
	if out := h.Delete(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("repeated Delete = %#v", out)
	}
}

func TestTargetNamespaceFromSpec(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	h := handlerFor(t, New(client, "mirrors"))

	r := mirrorResource("db", map[string]any{"targetNamespace": "payments", "data": map[string]any{"HOST": "db"}})
	if out := h.Create(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("Create = %#v", out)
	}
	if _, err := client.CoreV1().ConfigMaps("payments").Get(ctx, "db", metav1.GetOptions{}); err != nil {
		t.Fatalf("configmap not in target namespace: %v", err)
	}
}

func TestRetargetRemovesPreviousCopy(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	h := handlerFor(t, New(client, "mirrors"))

	r := mirrorResource("m", map[string]any{"targetNamespace": "ns1", "data": map[string]any{"a": "1"}})
	if out := h.Create(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("Create = %#v", out)
	}

	r.Spec = map[string]any{"targetNamespace": "ns2", "data": map[string]any{"a": "2"}}
	if out := h.Update(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("Update = %#v", out)
	}
	if _, err := client.CoreV1().ConfigMaps("ns1").Get(ctx, "m", metav1.GetOptions{}); !apierrors.IsNotFound(err) {
		t.Fatalf("previous copy in ns1: err = %v, want NotFound", err)
	}
	cm, err := client.CoreV1().ConfigMaps("ns2").Get(ctx, "m", metav1.GetOptions{})
	if err != nil || cm.Data["a"] != "2" {
		t.Fatalf("copy in ns2 = %v, %v", cm, err)
	}

	if out := h.Delete(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("Delete = %#v", out)
	}
	all, err := client.CoreV1().ConfigMaps(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all.Items) != 0 {
		t.Fatalf("configmaps left after Delete: %d", len(all.Items))
	}
}

func TestDeleteFindsCopyUnderStaleSpec(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	h := handlerFor(t, New(client, "mirrors"))

	r := mirrorResource("m", map[string]any{"targetNamespace": "ns1"})
	if out := h.Create(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("Create = %#v", out)
	}

	// The delete event carries a spec that never reached Update.
	r.Spec = map[string]any{"targetNamespace": "ns2"}
	if out := h.Delete(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("Delete = %#v", out)
	}
	if _, err := client.CoreV1().ConfigMaps("ns1").Get(ctx, "m", metav1.GetOptions{}); !apierrors.IsNotFound(err) {
		t.Fatalf("copy in ns1 survived: err = %v", err)
	}
}

func TestLongNamesFitTheSourceLabel(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	h := handlerFor(t, New(client, "mirrors"))

	name := strings.Repeat("a", 120)
	r := mirrorResource(name, map[string]any{"data": map[string]any{"k": "v"}})
	if out := h.Create(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("Create = %#v", out)
	}

	cm, err := client.CoreV1().ConfigMaps("mirrors").Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	label := cm.Labels[labelSource]
	if errs := validation.IsValidLabelValue(label); len(errs) != 0 {
		t.Fatalf("source label %q: %v", label, errs)
	}
	if cm.Annotations[annotationSource] != "team-a/"+name {
		t.Fatalf("source annotation = %q", cm.Annotations[annotationSource])
	}

	// A different long name must not hash to the same owner.
	other := mirrorResource(strings.Repeat("a", 119)+"b", nil)
	if sourceLabel(other) == label {
		t.Fatal("distinct mirrors share a source label")
	}

	if out := h.Delete(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("Delete = %#v", out)
	}
	if _, err := client.CoreV1().ConfigMaps("mirrors").Get(ctx, name, metav1.GetOptions{}); !apierrors.IsNotFound(err) {
		t.Fatalf("configmap survived Delete: %v", err)
	}
}

func TestRefusesForeignConfigMap(t *testing.T) {
	ctx := context.Background()
	foreign := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "shared", Namespace: "mirrors"},
		Data:       map[string]string{"keep": "me"},
	}
	client := fake.NewSimpleClientset(foreign)
	h := handlerFor(t, New(client, "mirrors"))

	r := mirrorResource("shared", map[string]any{"data": map[string]any{"keep": "overwritten"}})

	out := h.Create(ctx, r)
	if core.IsAccepted(out) {
		t.Fatal("Create overwrote a ConfigMap it does not manage")
	}

	if out := h.Delete(ctx, r); !core.IsAccepted(out) {
		t.Fatalf("Delete = %#v", out)
	}
	cm, err := client.CoreV1().ConfigMaps("mirrors").Get(ctx, "shared", metav1.GetOptions{})
	if err != nil || cm.Data["keep"] != "me" {
		t.Fatalf("foreign configmap touched: %v %v", cm, err)
	}
}

func TestInvalidSpecFailsWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	h := handlerFor(t, New(client, "mirrors"))

	r := mirrorResource("bad", map[string]any{"data": "not-a-map"})
	if out := h.Create(ctx, r); core.IsAccepted(out) {
		t.Fatal("Create accepted an undecodable spec")
	}
	if n := len(client.Actions()); n != 0 {
		t.Fatalf("%d API calls for an undecodable spec", n)
	}
}

func TestAPIFailureIsReported(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "configmaps", func(clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("admission webhook denied the request")
	})
	h := handlerFor(t, New(client, "mirrors"))

	out := h.Create(ctx, mirrorResource("x", map[string]any{"data": map[string]any{"a": "b"}}))
	f, ok := out.(core.Failed)
	if !ok {
		t.Fatalf("Create = %#v, want Failed", out)
	}
	if f.Reason == "" {
		t.Fatal("Failed without reason")
	}
}
