package kubernetes

import (
	"context"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/otterscale/resource-adapter/internal/core"
)

type schemaClient struct {
	kubernetes *Kubernetes
}

// NewSchemaClient returns a core.SchemaClient backed by the
// CustomResourceDefinition API.
func NewSchemaClient(kubernetes *Kubernetes) core.SchemaClient {
	return &schemaClient{kubernetes: kubernetes}
}

var _ core.SchemaClient = (*schemaClient)(nil)

func (c *schemaClient) Create(ctx context.Context, def *core.KindDefinition) (*core.SchemaHandle, error) {
	crd := def.CRD.DeepCopy()
	crd.ResourceVersion = ""

	out, err := c.kubernetes.extensions.ApiextensionsV1().CustomResourceDefinitions().Create(ctx, crd, metav1.CreateOptions{
		FieldManager: fieldManager,
	})
	if err != nil {
		return nil, wrapK8sError(err)
	}
	return toSchemaHandle(out), nil
}

func (c *schemaClient) Get(ctx context.Context, name string) (*core.SchemaHandle, error) {
	out, err := c.kubernetes.extensions.ApiextensionsV1().CustomResourceDefinitions().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, wrapK8sError(err)
	}
	return toSchemaHandle(out), nil
}

func toSchemaHandle(crd *apiextensionsv1.CustomResourceDefinition) *core.SchemaHandle {
	return &core.SchemaHandle{
		Name:            crd.Name,
		UID:             string(crd.UID),
		ResourceVersion: crd.ResourceVersion,
		Established:     isEstablished(crd),
	}
}

// isEstablished reports whether the API server has started serving the
// definition.
func isEstablished(crd *apiextensionsv1.CustomResourceDefinition) bool {
	for _, cond := range crd.Status.Conditions {
		if cond.Type == apiextensionsv1.Established && cond.Status == apiextensionsv1.ConditionTrue {
			return true
		}
	}
	return false
}
