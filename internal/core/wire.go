package core

import (
	"github.com/google/wire"
)

// ProviderSet is the Wire provider set for the reconciliation core.
var ProviderSet = wire.NewSet(
	NewSchemaRegistrar,
	NewLifecycleManager,
	ProvideRegistry,
)

// ProvideRegistry builds the kind table from the plugins compiled into
// the binary.
func ProvideRegistry(plugins []Plugin) (*Registry, error) {
	return NewRegistry(plugins...)
}
