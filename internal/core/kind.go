package core

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"
)

// ResourceKind identifies one category of managed resource.
type ResourceKind struct {
	Group   string
	Version string
	Plural  string
}

// Key returns a stable identifier such as "widgets.example.com/v1". It
// is used as the cursor key and the health service name.
func (k ResourceKind) Key() string {
	if k.Group == "" {
		return k.Plural + "/" + k.Version
	}
	return k.Plural + "." + k.Group + "/" + k.Version
}

func (k ResourceKind) String() string {
	return k.Key()
}

// GroupVersionResource converts the kind to its apimachinery form.
func (k ResourceKind) GroupVersionResource() schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: k.Group, Version: k.Version, Resource: k.Plural}
}

// KindDefinition is a parsed CustomResourceDefinition document
// together with the kind it declares.
type KindDefinition struct {
	// Name is the CRD object name, "<plural>.<group>".
	Name string
	// Kind is derived from the group, the storage (or first served)
	// version and the plural name.
	Kind ResourceKind
	// Namespaced is true for namespace-scoped resources.
	Namespaced bool
	// CRD is the document forwarded verbatim to the control plane.
	CRD *apiextensionsv1.CustomResourceDefinition
}

// NewKindDefinition validates crd and derives its ResourceKind.
func NewKindDefinition(crd *apiextensionsv1.CustomResourceDefinition) (*KindDefinition, error) {
	if crd == nil {
		return nil, &DomainError{Code: ErrorCodeInvalidArgument, Message: "nil definition"}
	}
	if crd.Spec.Group == "" || crd.Spec.Names.Plural == "" {
		return nil, &DomainError{Code: ErrorCodeInvalidArgument, Message: fmt.Sprintf("definition %q: group and plural name are required", crd.Name)}
	}

	version := ""
	for _, v := range crd.Spec.Versions {
		if !v.Served {
			continue
		}
		if v.Storage {
			version = v.Name
			break
		}
		if version == "" {
			version = v.Name
		}
	}
	if version == "" {
		return nil, &DomainError{Code: ErrorCodeInvalidArgument, Message: fmt.Sprintf("definition %q: no served version", crd.Name)}
	}

	name := crd.Spec.Names.Plural + "." + crd.Spec.Group
	if crd.Name == "" {
		crd.Name = name
	}
	if crd.Name != name {
		return nil, &DomainError{Code: ErrorCodeInvalidArgument, Message: fmt.Sprintf("definition name %q must be %q", crd.Name, name)}
	}

	return &KindDefinition{
		Name: name,
		Kind: ResourceKind{
			Group:   crd.Spec.Group,
			Version: version,
			Plural:  crd.Spec.Names.Plural,
		},
		Namespaced: crd.Spec.Scope == apiextensionsv1.NamespaceScoped,
		CRD:        crd,
	}, nil
}

// ParseKindDefinitions splits a multi-document YAML (or JSON) stream
// and returns one KindDefinition per CustomResourceDefinition. Empty
// documents are skipped; any other kind is rejected.
func ParseKindDefinitions(data []byte) ([]*KindDefinition, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(data)))

	var defs []*KindDefinition
	for {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read definition document: %w", err)
		}
		if len(strings.TrimSpace(string(doc))) == 0 {
			continue
		}

		crd := &apiextensionsv1.CustomResourceDefinition{}
		if err := yaml.Unmarshal(doc, crd); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		if crd.Kind == "" && crd.Name == "" {
			continue
		}
		if crd.Kind != "CustomResourceDefinition" {
			return nil, &DomainError{Code: ErrorCodeInvalidArgument, Message: fmt.Sprintf("unexpected document kind %q", crd.Kind)}
		}

		def, err := NewKindDefinition(crd)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, nil
}
