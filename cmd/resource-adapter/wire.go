//go:build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/spf13/cobra"

	"github.com/otterscale/resource-adapter/internal/cmd"
	"github.com/otterscale/resource-adapter/internal/cmd/adapter"
	"github.com/otterscale/resource-adapter/internal/config"
	"github.com/otterscale/resource-adapter/internal/core"
	"github.com/otterscale/resource-adapter/internal/leader"
	"github.com/otterscale/resource-adapter/internal/plugins"
	"github.com/otterscale/resource-adapter/internal/providers"
)

func wireCmd() (*cobra.Command, func(), error) {
	panic(wire.Build(
		newCmd,
		config.ProviderSet,
	))
}

func wireAdapter(conf *config.Config) (*adapter.Adapter, func(), error) {
	panic(wire.Build(
		provideRegistrarConfig,
		provideLoopConfig,
		cmd.ProviderSet,
		core.ProviderSet,
		plugins.ProviderSet,
		leader.ProviderSet,
		providers.ProviderSet,
	))
}
