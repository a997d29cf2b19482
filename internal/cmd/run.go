package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otterscale/resource-adapter/internal/cmd/adapter"
	"github.com/otterscale/resource-adapter/internal/config"
)

type AdapterInjector func() (*adapter.Adapter, func(), error)

func NewRunCommand(conf *config.Config, newAdapter AdapterInjector) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Register the bundled kinds and reconcile their resources until stopped",
		Example: "resource-adapter run --database-path=/var/lib/resource-adapter/state.db --leader",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := newAdapter()
			if err != nil {
				return fmt.Errorf("failed to initialize adapter: %w", err)
			}
			defer cleanup()

			cfg := adapter.Config{
				OpsAddress:      conf.OpsAddress(),
				AllowedOrigins:  conf.OpsAllowedOrigins(),
				BearerToken:     conf.OpsBearerToken(),
				ShutdownTimeout: conf.ShutdownTimeout(),
			}

			return a.Run(cmd.Context(), cfg)
		},
	}

	if err := conf.BindFlags(cmd.Flags(), config.RunOptions); err != nil {
		return nil, err
	}

	return cmd, nil
}
