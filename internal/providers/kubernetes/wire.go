package kubernetes

import (
	"github.com/google/wire"
)

// ProviderSet is the Wire provider set for the API server adapters.
var ProviderSet = wire.NewSet(
	ProvideRestConfig,
	New,
	NewDiscoveryClient,
	NewSchemaClient,
)
