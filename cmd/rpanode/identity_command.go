package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rpanode/internal/nodestore"
)

type identityView struct {
	UUID      string `json:"uuid"`
	Source    string `json:"source"`
	CreatedAt string `json:"createdAt"`
	Database  string `json:"database"`
}

func newIdentityCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut bool
		create  bool
	)

	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Show the persisted node identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := nodestore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var id nodestore.Identity
			if create {
				id, err = store.EnsureIdentity(cmd.Context(), cfg.Paths.LegacyUUIDFile)
				if err != nil {
					return err
				}
			} else {
				var ok bool
				id, ok, err = store.LoadIdentity(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no identity stored in %s; run `rpanode identity --create` or start the node", store.Path())
				}
			}

			view := identityView{
				UUID:      id.UUID,
				Source:    id.Source,
				CreatedAt: id.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"),
				Database:  store.Path(),
			}
			if jsonOut {
				return writeJSON(cmd, view)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Node ID:  %s\n", view.UUID)
			fmt.Fprintf(out, "Source:   %s\n", view.Source)
			fmt.Fprintf(out, "Created:  %s\n", view.CreatedAt)
			fmt.Fprintf(out, "Database: %s\n", view.Database)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&create, "create", false, "Create the identity if none is stored")
	return cmd
}
