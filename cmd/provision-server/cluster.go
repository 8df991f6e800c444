package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sddcinfo/provisioning-server/pkg/cluster"
	"github.com/sddcinfo/provisioning-server/pkg/types"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage the formed cluster",
}

func init() {
	clusterCmd.AddCommand(clusterFormCmd)
}

var clusterFormCmd = &cobra.Command{
	Use:   "form",
	Short: "Form the cluster from the configured fleet",
	Long: `Create the cluster on the configured primary (unless it already
exists) and join every other configured node. Safe to re-run: nodes
that are already members are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := cfg.PrimaryNode(); err != nil {
			return err
		}

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		run := &types.ClusterTarget{
			RunID:     uuid.NewString(),
			Primary:   cfg.Cluster.Primary,
			StartedAt: time.Now().UTC(),
		}
		for _, n := range cfg.Nodes {
			key, err := n.Key()
			if err != nil {
				return err
			}
			run.Nodes = append(run.Nodes, key)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		former := cluster.NewFormer(s, cfg, clusterFactory(cfg))
		res, err := former.Form(ctx, run)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Clustered: %s\n", strings.Join(res.Clustered, ", "))
		fmt.Fprintf(cmd.OutOrStdout(), "Quorate:   %v (%d members)\n", res.Quorate, res.Members)
		return res.Check()
	},
}
