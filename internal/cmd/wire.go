// Package cmd defines the Cobra subcommands and their Wire provider
// sets. It bridges configuration, dependency injection, and the
// runtime in internal/cmd/adapter.
package cmd

import (
	"github.com/google/wire"

	"github.com/otterscale/resource-adapter/internal/cmd/adapter"
)

// ProviderSet is the Wire provider set for the CLI layer. It exposes
// the Adapter constructor plus its collaborators.
var ProviderSet = wire.NewSet(
	adapter.NewAdapter,
	adapter.NewHandler,
	adapter.NewReconciler,
	adapter.ProvideBackgroundListeners,
)
