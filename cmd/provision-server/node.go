package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sddcinfo/provisioning-server/pkg/config"
	"github.com/sddcinfo/provisioning-server/pkg/store"
	"github.com/sddcinfo/provisioning-server/pkg/types"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Inspect fleet nodes",
}

func init() {
	nodeCmd.AddCommand(nodeListCmd)
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured nodes with their lifecycle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		return printFleet(cmd, cfg, s)
	},
}

// printFleet renders the configured nodes merged with stored lifecycle
// state. A nil store prints configuration only.
func printFleet(cmd *cobra.Command, cfg *config.Config, s store.Store) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKEY\tMGMT IP\tINSTALL\tREPROVISION\tROLE\tLAST UPDATE")

	for _, n := range cfg.Nodes {
		key, err := n.Key()
		if err != nil {
			return err
		}

		install, reprov, role, updated := "-", "-", "-", "-"
		if s != nil {
			rec, err := s.GetNode(key)
			switch {
			case err == nil:
				install = string(rec.Status)
				if rec.ReprovisionStatus != types.ReprovisionNone {
					reprov = string(rec.ReprovisionStatus)
				}
				if rec.ClusterRole != "" {
					role = rec.ClusterRole
				}
				if !rec.LastUpdate.IsZero() {
					updated = rec.LastUpdate.Format("2006-01-02 15:04:05")
				}
			case errors.Is(err, types.ErrNotFound):
				// Configured but never seen; print placeholders.
			default:
				return err
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			n.Name, key, n.ManagementIP, install, reprov, role, updated)
	}
	return w.Flush()
}
