package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/otterscale/resource-adapter/internal/core"
)

type RegistryInjector func() (*core.Registry, error)

// NewKindsCommand prints the kinds compiled into the binary without
// contacting the API server.
func NewKindsCommand(newRegistry RegistryInjector) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the kinds handled by the bundled plugins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := newRegistry()
			if err != nil {
				return fmt.Errorf("failed to build registry: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tPLUGIN\tSCOPE\tDEFINITION")
			for _, reg := range registry.Registrations() {
				scope := "Cluster"
				if reg.Definition.Namespaced {
					scope = "Namespaced"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", reg.Definition.Kind.Key(), reg.Plugin, scope, reg.Definition.Name)
			}
			return w.Flush()
		},
	}
}
