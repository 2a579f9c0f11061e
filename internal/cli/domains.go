package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newDomainsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "domains",
		Short: "List forecast domains and their aliases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			infos, err := a.client().Domains(ctx)
			if err != nil {
				return err
			}
			return a.render(infos, func() { a.renderDomains(infos) })
		},
	}
}
