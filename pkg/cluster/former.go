package cluster

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sddcinfo/provisioning-server/pkg/config"
	"github.com/sddcinfo/provisioning-server/pkg/log"
	"github.com/sddcinfo/provisioning-server/pkg/metrics"
	"github.com/sddcinfo/provisioning-server/pkg/remote"
	"github.com/sddcinfo/provisioning-server/pkg/store"
	"github.com/sddcinfo/provisioning-server/pkg/types"
)

// ExecutorFactory builds a remote executor for one address. Formation
// always goes in-band over SSH; the factory decides credentials and
// transport details.
type ExecutorFactory func(addr string) (remote.Executor, error)

// Result is the outcome of one formation run.
type Result struct {
	Clustered []string // node names that ended up cluster members
	Failed    []string // node names that could not be joined
	Quorate   bool
	Members   int
}

// Full reports whether every targeted node became a member.
func (r *Result) Full() bool { return len(r.Failed) == 0 }

// Check folds the result into a single error: nil only for a fully
// formed, quorate cluster whose observed member count matches the
// targeted-and-not-failed count.
func (r *Result) Check() error {
	if !r.Full() {
		total := len(r.Clustered) + len(r.Failed)
		return fmt.Errorf("cluster formed with %d of %d nodes (failed: %s)",
			len(r.Clustered), total, strings.Join(r.Failed, ", "))
	}
	if !r.Quorate {
		return fmt.Errorf("cluster formed but quorum not confirmed")
	}
	if r.Members != len(r.Clustered) {
		return fmt.Errorf("quorum reports %d members, expected %d", r.Members, len(r.Clustered))
	}
	return nil
}

// Former turns a set of freshly installed nodes into a cluster: it
// verifies the primary, creates the cluster there unless one already
// exists, joins the remaining nodes one at a time, and confirms quorum.
// Every step is idempotent, so a re-run after partial failure only
// touches the nodes that are not members yet.
type Former struct {
	store   store.Store
	cfg     *config.Config
	factory ExecutorFactory
	inner   time.Duration
	outer   time.Duration
}

// NewFormer creates a cluster former.
func NewFormer(s store.Store, cfg *config.Config, factory ExecutorFactory) *Former {
	return &Former{
		store:   s,
		cfg:     cfg,
		factory: factory,
		inner:   cfg.Cluster.InnerTimeout.Std(),
		outer:   cfg.Cluster.OuterTimeout.Std(),
	}
}

// Form runs cluster formation for the given run. A primary that is not
// ready or cannot create the cluster aborts the whole run with an error;
// a member that fails readiness or join is recorded in Result.Failed and
// the run continues with the rest.
func (f *Former) Form(ctx context.Context, run *types.ClusterTarget) (*Result, error) {
	logger := log.WithRun(run.RunID).With().Str("component", "cluster").Logger()

	primary, err := f.cfg.PrimaryNode()
	if err != nil {
		metrics.ClusterFormationRunsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	members := make([]config.Node, 0, len(run.Nodes))
	for _, key := range run.Nodes {
		n, ok := f.cfg.NodeByKey(key)
		if !ok {
			logger.Warn().Str("node", key).Msg("targeted node not in configuration, skipping")
			continue
		}
		if n.Name != primary.Name {
			members = append(members, n)
		}
	}

	res := &Result{}

	if !f.hasCompleted(primary) {
		metrics.ClusterFormationRunsTotal.WithLabelValues("failed").Inc()
		return nil, &types.PreconditionError{Node: primary.Name, Reason: "primary has no completion marker in the state store"}
	}
	if err := f.verify(ctx, primary.ManagementIP); err != nil {
		metrics.ClusterFormationRunsTotal.WithLabelValues("failed").Inc()
		return nil, &types.PreconditionError{Node: primary.Name, Reason: fmt.Sprintf("primary not ready: %v", err)}
	}

	if f.isMember(ctx, primary.ManagementIP) {
		logger.Info().Str("node", primary.Name).Msg("primary already a cluster member, skipping create")
	} else {
		logger.Info().Str("node", primary.Name).Str("cluster", f.cfg.Cluster.Name).Msg("creating cluster")
		if err := f.create(ctx, primary); err != nil {
			metrics.ClusterFormationRunsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("cluster create on %s failed: %w", primary.Name, err)
		}
	}
	f.markClustered(primary, "primary")
	res.Clustered = append(res.Clustered, primary.Name)

	for _, n := range members {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := f.joinNode(ctx, primary, n, logger); err != nil {
			logger.Error().Err(err).Str("node", n.Name).Msg("node failed to join, continuing with remaining nodes")
			res.Failed = append(res.Failed, n.Name)
			continue
		}
		f.markClustered(n, "member")
		res.Clustered = append(res.Clustered, n.Name)
	}

	res.Quorate, res.Members = f.quorum(ctx, primary.ManagementIP)
	logger.Info().
		Int("clustered", len(res.Clustered)).
		Int("failed", len(res.Failed)).
		Bool("quorate", res.Quorate).
		Msg("cluster formation finished")

	switch {
	case res.Full() && res.Quorate && res.Members == len(res.Clustered):
		metrics.ClusterFormationRunsTotal.WithLabelValues("full").Inc()
	case len(res.Clustered) > 0:
		metrics.ClusterFormationRunsTotal.WithLabelValues("partial").Inc()
	default:
		metrics.ClusterFormationRunsTotal.WithLabelValues("failed").Inc()
	}
	return res, nil
}

// Trigger adapts Form to the completion monitor's callback shape: any
// node left out of the cluster surfaces as an error.
func (f *Former) Trigger(ctx context.Context, run *types.ClusterTarget) error {
	res, err := f.Form(ctx, run)
	if err != nil {
		return err
	}
	return res.Check()
}

// joinNode verifies one member and joins it, falling back to the
// primary's secondary address when the first join attempt fails.
func (f *Former) joinNode(ctx context.Context, primary, n config.Node, logger zerolog.Logger) error {
	if !f.hasCompleted(n) {
		return fmt.Errorf("no completion marker in the state store")
	}
	if err := f.verify(ctx, n.ManagementIP); err != nil {
		return fmt.Errorf("not ready: %w", err)
	}
	if f.isMember(ctx, n.ManagementIP) {
		logger.Info().Str("node", n.Name).Msg("node already a cluster member")
		return nil
	}

	logger.Info().Str("node", n.Name).Msg("joining cluster")
	err := f.run(ctx, n.ManagementIP, "join", joinCommand(primary.ManagementIP, n))
	if err == nil {
		return nil
	}
	if primary.SecondaryIP == "" {
		return err
	}

	logger.Warn().Err(err).Str("node", n.Name).Msg("join via management address failed, retrying via secondary link")
	if err2 := f.run(ctx, n.ManagementIP, "join-alt", joinCommand(primary.SecondaryIP, n)); err2 != nil {
		return fmt.Errorf("join failed on both links: %w", err2)
	}
	return nil
}

// hasCompleted checks the store-side completion marker: the node either
// finished its reprovision run, or carries a DONE install for runs
// started outside a monitor trigger.
func (f *Former) hasCompleted(n config.Node) bool {
	key, err := n.Key()
	if err != nil {
		return false
	}
	rec, err := f.store.GetNode(key)
	if err != nil {
		return false
	}
	switch rec.ReprovisionStatus {
	case types.ReprovisionCompleted, types.ReprovisionClustered:
		return true
	}
	return rec.Status == types.StatusDone
}

// verify checks the node's management service answers a trivial command.
func (f *Former) verify(ctx context.Context, addr string) error {
	return f.run(ctx, addr, "verify", "hostname")
}

// isMember reports whether the node already belongs to a cluster. A
// failing membership query is treated as not-a-member; the subsequent
// create or join surfaces the real problem.
func (f *Former) isMember(ctx context.Context, addr string) bool {
	return f.run(ctx, addr, "status", "pvecm status") == nil
}

// create initializes the cluster on the primary with both corosync links.
func (f *Former) create(ctx context.Context, primary config.Node) error {
	cmd := fmt.Sprintf("pvecm create %s --link0 %s", f.cfg.Cluster.Name, primary.ManagementIP)
	if primary.SecondaryIP != "" {
		cmd += " --link1 " + primary.SecondaryIP
	}
	return f.run(ctx, primary.ManagementIP, "create", cmd)
}

// quorum queries the primary for membership and quorum state.
func (f *Former) quorum(ctx context.Context, addr string) (bool, int) {
	out, err := remote.Supervise(ctx, f.inner, f.outer, "quorum", func(ctx context.Context) (string, error) {
		exec, err := f.factory(addr)
		if err != nil {
			return "", err
		}
		return exec.Run(ctx, "pvecm status")
	})
	if err != nil {
		return false, 0
	}
	return parseQuorum(out)
}

func (f *Former) run(ctx context.Context, addr, op, command string) error {
	_, err := remote.Supervise(ctx, f.inner, f.outer, op, func(ctx context.Context) (string, error) {
		exec, err := f.factory(addr)
		if err != nil {
			return "", err
		}
		return exec.Run(ctx, command)
	})
	return err
}

// markClustered advances a COMPLETED node to CLUSTERED and records its
// role. Nodes in any other state keep their status; only the role is
// updated, so a standalone formation run never fights the monitor.
func (f *Former) markClustered(n config.Node, role string) {
	key, err := n.Key()
	if err != nil {
		return
	}
	_, err = f.store.UpdateNode(key, func(r *types.NodeRecord) error {
		if r.ReprovisionStatus == types.ReprovisionCompleted || r.ReprovisionStatus == types.ReprovisionClustered {
			r.ReprovisionStatus = types.ReprovisionClustered
		}
		r.ClusterRole = role
		r.Hostname = n.Name
		r.ManagementIP = n.ManagementIP
		r.SecondaryIP = n.SecondaryIP
		return nil
	})
	if err != nil {
		nodeLog := log.WithNode(key)
		nodeLog.Error().Err(err).Msg("failed to record cluster membership")
	}
}

// joinCommand builds the join invocation a new member runs against an
// existing cluster address.
func joinCommand(clusterAddr string, n config.Node) string {
	cmd := fmt.Sprintf("pvecm add %s --link0 %s", clusterAddr, n.ManagementIP)
	if n.SecondaryIP != "" {
		cmd += " --link1 " + n.SecondaryIP
	}
	return cmd + " --use_ssh"
}

// parseQuorum extracts quorum state and member count from a status dump.
func parseQuorum(out string) (bool, int) {
	quorate := false
	members := 0
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "Quorate:":
			quorate = strings.EqualFold(fields[1], "yes")
		case "Nodes:":
			if n, err := strconv.Atoi(fields[1]); err == nil {
				members = n
			}
		}
	}
	return quorate, members
}
