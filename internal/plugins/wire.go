// Package plugins lists the plugins compiled into the adapter.
package plugins

import (
	"github.com/google/wire"

	"github.com/otterscale/resource-adapter/internal/config"
	"github.com/otterscale/resource-adapter/internal/core"
	"github.com/otterscale/resource-adapter/internal/plugins/mirror"
	"github.com/otterscale/resource-adapter/internal/providers/kubernetes"
)

// ProviderSet is the Wire provider set for the bundled plugins.
var ProviderSet = wire.NewSet(
	ProvideMirror,
	ProvidePlugins,
)

func ProvideMirror(conf *config.Config, k *kubernetes.Kubernetes) *mirror.Plugin {
	return mirror.New(k.Clientset(), conf.MirrorNamespace())
}

// ProvidePlugins is the plugin list handed to the registry.
func ProvidePlugins(m *mirror.Plugin) []core.Plugin {
	return []core.Plugin{m}
}
