package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sddcinfo/provisioning-server/pkg/cluster"
	"github.com/sddcinfo/provisioning-server/pkg/config"
	"github.com/sddcinfo/provisioning-server/pkg/monitor"
	"github.com/sddcinfo/provisioning-server/pkg/types"
)

var (
	reprovisionAll   bool
	reprovisionNodes []string
	reprovisionList  bool
	reprovisionDelay time.Duration
	reprovisionYes   bool
	reprovisionWait  bool
)

func init() {
	reprovisionCmd.Flags().BoolVar(&reprovisionAll, "all", false, "reprovision every configured node")
	reprovisionCmd.Flags().StringSliceVar(&reprovisionNodes, "nodes", nil, "comma-separated node names to reprovision")
	reprovisionCmd.Flags().BoolVar(&reprovisionList, "list", false, "list configured nodes and exit")
	reprovisionCmd.Flags().DurationVar(&reprovisionDelay, "delay", 0, "override the configured inter-node delay")
	reprovisionCmd.Flags().BoolVarP(&reprovisionYes, "yes", "y", false, "skip the confirmation prompt")
	reprovisionCmd.Flags().BoolVar(&reprovisionWait, "wait", true, "wait for installs to finish and trigger cluster formation")
}

var reprovisionCmd = &cobra.Command{
	Use:   "reprovision",
	Short: "Reset nodes and reboot them into the installer",
	Long: `Reset the selected nodes' install state and reboot them so their
next PXE boot reinstalls. With --wait (the default) the command then
watches the fleet until every node reports in, and forms the cluster
once all of them have.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if reprovisionList {
			return printFleet(cmd, cfg, nil)
		}

		targets, err := selectTargets(cfg)
		if err != nil {
			return err
		}
		if reprovisionAll && !reprovisionYes && !confirm(cmd, len(targets)) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}

		applyDelayOverride(cmd, cfg)

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		run := &types.ClusterTarget{
			RunID:        uuid.NewString(),
			Primary:      cfg.Cluster.Primary,
			StartedAt:    time.Now().UTC(),
			NodeDeadline: cfg.Reprovision.NodeDeadline.Std(),
		}
		for _, n := range targets {
			key, err := n.Key()
			if err != nil {
				return err
			}
			run.Nodes = append(run.Nodes, key)
		}
		if err := s.SaveRun(run); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		summary, err := newCoordinator(cfg, s).ReprovisionAll(ctx, targets)
		fmt.Fprintln(cmd.OutOrStdout(), summary.String())
		if err != nil {
			return err
		}
		batchFailed := summary.Failed()

		if !reprovisionWait {
			if len(batchFailed) > 0 {
				return fmt.Errorf("reprovision failed for: %s", strings.Join(batchFailed, ", "))
			}
			return nil
		}

		// Nodes that did reboot still need the monitor to drive them to
		// COMPLETED or TIMEOUT, so it runs even after partial batch
		// failure; failed nodes surface afterwards.
		former := cluster.NewFormer(s, cfg, clusterFactory(cfg))
		mon := monitor.New(s, cfg, readyProbe(cfg), former.Trigger)
		return watchAndReport(ctx, cmd.OutOrStdout(), mon, run, batchFailed)
	},
}

// watchAndReport runs the completion monitor for the run and folds any
// batch-phase failures into the final status.
func watchAndReport(ctx context.Context, out io.Writer, mon *monitor.Monitor, run *types.ClusterTarget, batchFailed []string) error {
	if err := mon.Run(ctx, run); err != nil {
		return err
	}
	if len(batchFailed) > 0 {
		return fmt.Errorf("reprovision failed for: %s", strings.Join(batchFailed, ", "))
	}
	fmt.Fprintln(out, "All nodes reinstalled and clustered.")
	return nil
}

// applyDelayOverride honors an explicit --delay, including zero.
func applyDelayOverride(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("delay") {
		cfg.Reprovision.NodeDelay = config.Duration(reprovisionDelay)
	}
}

// selectTargets resolves --all / --nodes into configured nodes.
func selectTargets(cfg *config.Config) ([]config.Node, error) {
	if reprovisionAll && len(reprovisionNodes) > 0 {
		return nil, fmt.Errorf("--all and --nodes are mutually exclusive")
	}
	if reprovisionAll {
		if len(cfg.Nodes) == 0 {
			return nil, fmt.Errorf("no nodes configured")
		}
		return cfg.Nodes, nil
	}
	if len(reprovisionNodes) == 0 {
		return nil, fmt.Errorf("nothing selected: use --all or --nodes")
	}
	var targets []config.Node
	for _, name := range reprovisionNodes {
		n, ok := cfg.NodeByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown node %q", name)
		}
		targets = append(targets, n)
	}
	return targets, nil
}

// confirm asks before wiping the whole fleet.
func confirm(cmd *cobra.Command, count int) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "This reinstalls ALL %d nodes and destroys their data. Continue? [y/N]: ", count)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
