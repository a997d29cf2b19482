package kubernetes

import (
	"fmt"

	apiextensionsclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	clientset "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// fieldManager identifies the adapter in managedFields.
const fieldManager = "resource-adapter"

// Kubernetes bundles the API clients the adapter talks through. All of
// them share the transport built from one rest.Config.
type Kubernetes struct {
	dynamic    dynamic.Interface
	extensions apiextensionsclientset.Interface
	discovery  discovery.DiscoveryInterface
	clientset  clientset.Interface
}

// New builds every client from cfg.
func New(cfg *rest.Config) (*Kubernetes, error) {
	httpClient, err := rest.HTTPClientFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	dyn, err := dynamic.NewForConfigAndClient(cfg, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	ext, err := apiextensionsclientset.NewForConfigAndClient(cfg, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create apiextensions client: %w", err)
	}

	cs, err := clientset.NewForConfigAndClient(cfg, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return &Kubernetes{
		dynamic:    dyn,
		extensions: ext,
		discovery:  cs.Discovery(),
		clientset:  cs,
	}, nil
}

// NewForClients wraps existing clients, typically fakes in tests.
func NewForClients(dyn dynamic.Interface, ext apiextensionsclientset.Interface, cs clientset.Interface) *Kubernetes {
	return &Kubernetes{
		dynamic:    dyn,
		extensions: ext,
		discovery:  cs.Discovery(),
		clientset:  cs,
	}
}

// Clientset returns the typed client for built-in resources. Plugins
// use it to converge their target objects.
func (k *Kubernetes) Clientset() clientset.Interface {
	return k.clientset
}
