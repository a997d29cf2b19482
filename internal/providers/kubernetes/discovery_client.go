package kubernetes

import (
	"context"

	"github.com/Masterminds/semver/v3"
	"k8s.io/apimachinery/pkg/version"

	"github.com/otterscale/resource-adapter/internal/core"
)

// minWatchListVersion is the minimum Kubernetes version that supports
// the WatchList streaming feature (beta, default-on since 1.34).
var minWatchListVersion = semver.MustParse("v1.34.0")

type discoveryClient struct {
	kubernetes *Kubernetes
}

func NewDiscoveryClient(kubernetes *Kubernetes) core.DiscoveryClient {
	return &discoveryClient{kubernetes: kubernetes}
}

var _ core.DiscoveryClient = (*discoveryClient)(nil)

// ServerVersion returns the Kubernetes version of the API server.
func (d *discoveryClient) ServerVersion(_ context.Context) (*version.Info, error) {
	info, err := d.kubernetes.discovery.ServerVersion()
	return info, wrapK8sError(err)
}

// supportsWatchList reports whether info names a server that can stream
// the initial state of a watch.
// See https://kubernetes.io/docs/reference/using-api/api-concepts/#streaming-lists
func supportsWatchList(info *version.Info) (bool, error) {
	kubeVersion, err := semver.NewVersion(info.String())
	if err != nil {
		return false, err
	}
	return kubeVersion.GreaterThanEqual(minWatchListVersion), nil
}
