package leader

import (
	"github.com/google/wire"

	"github.com/otterscale/resource-adapter/internal/config"
	"github.com/otterscale/resource-adapter/internal/providers/kubernetes"
)

// ProvideElector returns nil when leader election is disabled; the
// adapter then reconciles unconditionally.
func ProvideElector(conf *config.Config, k *kubernetes.Kubernetes) (*Elector, error) {
	if !conf.LeaderEnabled() {
		return nil, nil
	}
	return NewElector(Config{
		Namespace: conf.LeaderNamespace(),
		LeaseName: conf.LeaderLeaseName(),
	}, k.Clientset())
}

var ProviderSet = wire.NewSet(ProvideElector)
