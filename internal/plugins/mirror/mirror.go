// Package mirror is the bundled plugin that converges ConfigMirror
// resources into ConfigMaps.
package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes"

	"github.com/otterscale/resource-adapter/internal/core"
	"github.com/otterscale/resource-adapter/manifests"
)

const (
	Name = "mirror"

	definitionFile = "crds/configmirror.yaml"

	labelManagedBy   = "app.kubernetes.io/managed-by"
	labelSource      = "adapter.otterscale.io/source"
	annotationSource = "adapter.otterscale.io/source"
	managedBy        = "resource-adapter"
)

// Spec is the desired state of a ConfigMirror.
type Spec struct {
	// TargetNamespace receives the ConfigMap. Empty selects the
	// plugin's default namespace.
	TargetNamespace string            `json:"targetNamespace,omitempty"`
	Data            map[string]string `json:"data,omitempty"`
}

// Plugin mirrors every ConfigMirror into a ConfigMap of the same name.
type Plugin struct {
	client           kubernetes.Interface
	defaultNamespace string
	log              *slog.Logger
}

func New(client kubernetes.Interface, defaultNamespace string) *Plugin {
	if defaultNamespace == "" {
		defaultNamespace = metav1.NamespaceDefault
	}
	return &Plugin{
		client:           client,
		defaultNamespace: defaultNamespace,
		log:              slog.Default().With("component", "mirror-plugin"),
	}
}

var _ core.Plugin = (*Plugin)(nil)
var _ core.SpecHandler[Spec] = (*Plugin)(nil)

func (p *Plugin) Name() string {
	return Name
}

func (p *Plugin) SupportedKinds() ([]core.KindSupport, error) {
	data, err := manifests.CRDs.ReadFile(definitionFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", definitionFile, err)
	}

	defs, err := core.ParseKindDefinitions(data)
	if err != nil {
		return nil, err
	}
	if len(defs) != 1 {
		return nil, fmt.Errorf("%s: want one definition, got %d", definitionFile, len(defs))
	}

	return []core.KindSupport{{Definition: defs[0], Handler: core.Typed[Spec](p)}}, nil
}

func (p *Plugin) Create(ctx context.Context, r *core.Resource, spec Spec) core.Outcome {
	return p.apply(ctx, r, spec)
}

func (p *Plugin) Update(ctx context.Context, r *core.Resource, spec Spec) core.Outcome {
	return p.apply(ctx, r, spec)
}

// Delete removes every ConfigMap the mirror owns, whichever namespace
// it was last targeted at. ConfigMaps that are already gone, or that
// belong to another mirror, count as deleted.
func (p *Plugin) Delete(ctx context.Context, r *core.Resource, _ Spec) core.Outcome {
	if err := p.prune(ctx, r, ""); err != nil {
		return core.Failf("%v", err)
	}
	return core.Accepted{}
}

// apply creates the ConfigMap or overwrites its data. It is safe to
// repeat for the same resource.
func (p *Plugin) apply(ctx context.Context, r *core.Resource, spec Spec) core.Outcome {
	namespace := p.targetNamespace(spec)
	configMaps := p.client.CoreV1().ConfigMaps(namespace)
	source := sourceLabel(r)

	existing, err := configMaps.Get(ctx, r.Metadata.Name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		cm := &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      r.Metadata.Name,
				Namespace: namespace,
				Labels: map[string]string{
					labelManagedBy: managedBy,
					labelSource:    source,
				},
				Annotations: map[string]string{
					annotationSource: r.Key(),
				},
			},
			Data: spec.Data,
		}
		if _, err := configMaps.Create(ctx, cm, metav1.CreateOptions{FieldManager: managedBy}); err != nil {
			return core.Failf("create configmap %s/%s: %v", namespace, r.Metadata.Name, err)
		}
		p.log.Info("created configmap", "configmap", namespace+"/"+r.Metadata.Name, "mirror", r.Key())

	case err != nil:
		return core.Failf("get configmap %s/%s: %v", namespace, r.Metadata.Name, err)

	case !owns(existing, r):
		return core.Failf("configmap %s/%s is not managed by mirror %s", namespace, r.Metadata.Name, r.Key())

	default:
		existing.Data = spec.Data
		if _, err := configMaps.Update(ctx, existing, metav1.UpdateOptions{FieldManager: managedBy}); err != nil {
			return core.Failf("update configmap %s/%s: %v", namespace, r.Metadata.Name, err)
		}
		p.log.Info("updated configmap", "configmap", namespace+"/"+r.Metadata.Name, "mirror", r.Key())
	}

	// A changed targetNamespace leaves the previous copy behind.
	if err := p.prune(ctx, r, namespace); err != nil {
		return core.Failf("%v", err)
	}
	return core.Accepted{}
}

// prune deletes the ConfigMaps owned by r outside namespace keep. An
// empty keep deletes all of them.
func (p *Plugin) prune(ctx context.Context, r *core.Resource, keep string) error {
	selector := labels.SelectorFromSet(labels.Set{labelSource: sourceLabel(r)})
	list, err := p.client.CoreV1().ConfigMaps(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		LabelSelector: selector.String(),
	})
	if err != nil {
		return fmt.Errorf("list configmaps of mirror %s: %w", r.Key(), err)
	}

	for i := range list.Items {
		cm := &list.Items[i]
		if cm.Namespace == keep || cm.Name != r.Metadata.Name || !owns(cm, r) {
			continue
		}
		err := p.client.CoreV1().ConfigMaps(cm.Namespace).Delete(ctx, cm.Name, metav1.DeleteOptions{
			Preconditions: &metav1.Preconditions{UID: &cm.UID},
		})
		if err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("delete configmap %s/%s: %w", cm.Namespace, cm.Name, err)
		}
		p.log.Info("deleted configmap", "configmap", cm.Namespace+"/"+cm.Name, "mirror", r.Key())
	}
	return nil
}

func (p *Plugin) targetNamespace(spec Spec) string {
	if spec.TargetNamespace != "" {
		return spec.TargetNamespace
	}
	return p.defaultNamespace
}

// owns reports whether cm was written for r. The label narrows the
// lookup; the annotation holds the full key the label may have hashed.
func owns(cm *corev1.ConfigMap, r *core.Resource) bool {
	return cm.Labels[labelSource] == sourceLabel(r) && cm.Annotations[annotationSource] == r.Key()
}

// sourceLabel names the mirror in a label-safe form. Names too long for
// a label value are replaced by a digest.
func sourceLabel(r *core.Resource) string {
	value := r.Metadata.Name
	if r.Metadata.Namespace != "" {
		value = r.Metadata.Namespace + "." + r.Metadata.Name
	}
	if len(value) <= validation.LabelValueMaxLength {
		return value
	}
	sum := sha256.Sum256([]byte(r.Key()))
	return hex.EncodeToString(sum[:])[:validation.LabelValueMaxLength]
}
