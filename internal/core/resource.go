package core

import (
	"fmt"
	"maps"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

// ObjectMeta is the subset of Kubernetes object metadata the adapter
// tracks.
type ObjectMeta struct {
	Name            string            `json:"name"`
	Namespace       string            `json:"namespace,omitempty"`
	UID             string            `json:"uid,omitempty"`
	ResourceVersion string            `json:"resourceVersion,omitempty"`
	Generation      int64             `json:"generation,omitempty"`
	Labels          map[string]string `json:"labels,omitempty"`
}

// Resource is one observed custom resource. Spec stays untyped until a
// handler decodes it with DecodeSpec.
type Resource struct {
	APIVersion string         `json:"apiVersion"`
	Kind       string         `json:"kind"`
	Metadata   ObjectMeta     `json:"metadata"`
	Spec       map[string]any `json:"spec,omitempty"`
}

// Key identifies the resource within its kind: "namespace/name" for
// namespaced resources and "name" otherwise. Repository and plugin
// operations are keyed by it, never by event identity.
func (r *Resource) Key() string {
	if r.Metadata.Namespace == "" {
		return r.Metadata.Name
	}
	return r.Metadata.Namespace + "/" + r.Metadata.Name
}

// Version returns the resource version as a Cursor.
func (r *Resource) Version() Cursor {
	return Cursor(r.Metadata.ResourceVersion)
}

// DeepCopy returns a copy that shares no maps with r.
func (r *Resource) DeepCopy() *Resource {
	if r == nil {
		return nil
	}
	out := *r
	out.Metadata.Labels = maps.Clone(r.Metadata.Labels)
	if r.Spec != nil {
		out.Spec = runtime.DeepCopyJSON(r.Spec)
	}
	return &out
}

// ResourceFromObject converts a raw Kubernetes object into a Resource.
// A missing name is a DecodeError.
func ResourceFromObject(object map[string]any) (*Resource, error) {
	if object == nil {
		return nil, &DecodeError{Reason: "empty object"}
	}

	u := &unstructured.Unstructured{Object: object}
	if u.GetName() == "" {
		return nil, &DecodeError{Reason: "object has no metadata.name"}
	}

	spec, _, err := unstructured.NestedMap(object, "spec")
	if err != nil {
		return nil, &DecodeError{Reason: "spec is not an object", Cause: err}
	}

	return &Resource{
		APIVersion: u.GetAPIVersion(),
		Kind:       u.GetKind(),
		Metadata: ObjectMeta{
			Name:            u.GetName(),
			Namespace:       u.GetNamespace(),
			UID:             string(u.GetUID()),
			ResourceVersion: u.GetResourceVersion(),
			Generation:      u.GetGeneration(),
			Labels:          u.GetLabels(),
		},
		Spec: spec,
	}, nil
}

// DecodeSpec converts the untyped spec into T using the apimachinery
// unstructured converter, so json tags on T apply.
func DecodeSpec[T any](r *Resource) (T, error) {
	var spec T
	if r == nil || r.Spec == nil {
		return spec, nil
	}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(r.Spec, &spec); err != nil {
		return spec, fmt.Errorf("decode spec of %s: %w", r.Key(), err)
	}
	return spec, nil
}
