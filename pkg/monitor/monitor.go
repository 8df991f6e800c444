package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sddcinfo/provisioning-server/pkg/config"
	"github.com/sddcinfo/provisioning-server/pkg/log"
	"github.com/sddcinfo/provisioning-server/pkg/metrics"
	"github.com/sddcinfo/provisioning-server/pkg/store"
	"github.com/sddcinfo/provisioning-server/pkg/types"
)

// Policy decides what happens to a node stuck past its deadline that
// later becomes reachable again.
type Policy string

const (
	// PolicyManual leaves a TIMEOUT node for an explicit operator reset.
	PolicyManual Policy = "manual"
	// PolicyRepoll re-enters a TIMEOUT node into the polling loop when
	// the readiness signal is observed.
	PolicyRepoll Policy = "repoll"
)

// ReadyFunc is the external readiness signal: true once the node's
// management service answers health checks.
type ReadyFunc func(ctx context.Context, n config.Node) bool

// FormFunc triggers cluster formation for a run. The monitor calls it at
// most once per run, guarded by the store's trigger flag.
type FormFunc func(ctx context.Context, run *types.ClusterTarget) error

// Monitor polls the fleet until every targeted node completes or times
// out, then triggers cluster formation exactly once.
type Monitor struct {
	store    store.Store
	cfg      *config.Config
	ready    ReadyFunc
	form     FormFunc
	interval time.Duration
	policy   Policy
}

// New creates a completion monitor.
func New(s store.Store, cfg *config.Config, ready ReadyFunc, form FormFunc) *Monitor {
	return &Monitor{
		store:    s,
		cfg:      cfg,
		ready:    ready,
		form:     form,
		interval: cfg.Reprovision.PollInterval.Std(),
		policy:   Policy(cfg.Reprovision.StuckNodePolicy),
	}
}

// Run polls until the run reaches a terminal condition. It returns nil
// when every targeted node completed and cluster formation was triggered
// (by this monitor or a concurrent one), an error naming the stragglers
// when some nodes ended TIMEOUT or ERROR, and ctx.Err() on cancellation.
// Store accesses are single logical operations; cancellation is honored
// between them, never inside.
func (m *Monitor) Run(ctx context.Context, run *types.ClusterTarget) error {
	logger := log.WithRun(run.RunID)
	logger.Info().Int("nodes", len(run.Nodes)).Dur("deadline", run.NodeDeadline).Msg("completion monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("completion monitor interrupted")
			return ctx.Err()
		case <-ticker.C:
		}

		timer := metrics.NewTimer()
		done, err := m.poll(ctx, run, logger)
		timer.ObserveDuration(metrics.MonitorPollDuration)
		if err != nil {
			// Store-level trouble: log and keep polling rather than
			// abandoning a run mid-flight.
			logger.Error().Err(err).Msg("poll cycle failed")
			continue
		}
		if done {
			return m.finish(ctx, run, logger)
		}
	}
}

// poll advances every targeted node one step and reports whether the run
// has reached a terminal condition (no node can make further progress).
func (m *Monitor) poll(ctx context.Context, run *types.ClusterTarget, logger zerolog.Logger) (bool, error) {
	pending := 0
	for _, key := range run.Nodes {
		rec, err := m.store.GetNode(key)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				// Not registered yet, or deleted mid-run by an operator.
				// The per-node deadline applies either way; past it the
				// node is a straggler and the run must terminate.
				if time.Since(run.StartedAt) > run.NodeDeadline {
					nodeLog := log.WithNode(key)
					nodeLog.Warn().Str("phase", "monitor").Msg("record missing past deadline, giving up on node")
					continue
				}
				pending++
				continue
			}
			return false, err
		}

		switch rec.ReprovisionStatus {
		case types.ReprovisionCompleted, types.ReprovisionClustered:
			continue
		case types.ReprovisionError:
			continue
		case types.ReprovisionTimeout:
			// Under repoll the node stays watched until it answers
			// readiness checks; under manual TIMEOUT is terminal.
			if m.policy == PolicyRepoll {
				if n, ok := m.cfg.NodeByKey(key); ok && m.ready(ctx, n) {
					if err := m.reenter(key); err != nil {
						return false, err
					}
				}
				pending++
			}
			continue
		}

		// IN_PROGRESS (or never started): check readiness, then deadline.
		n, ok := m.cfg.NodeByKey(key)
		if ok && m.ready(ctx, n) {
			if _, err := m.store.UpdateNode(key, func(r *types.NodeRecord) error {
				r.ReprovisionStatus = types.ReprovisionCompleted
				return nil
			}); err != nil {
				return false, err
			}
			nodeLog := log.WithNode(key)
			nodeLog.Info().Str("phase", "monitor").Msg("node completed")
			continue
		}

		if time.Since(run.StartedAt) > run.NodeDeadline {
			if _, err := m.store.UpdateNode(key, func(r *types.NodeRecord) error {
				r.ReprovisionStatus = types.ReprovisionTimeout
				return nil
			}); err != nil {
				return false, err
			}
			nodeLog := log.WithNode(key)
			nodeLog.Warn().Str("phase", "monitor").Dur("deadline", run.NodeDeadline).Msg("node deadline exceeded")
			if m.policy == PolicyRepoll {
				pending++
			}
			continue
		}
		pending++
	}
	return pending == 0, nil
}

// finish evaluates the terminal state and, when every node completed,
// fires cluster formation through the store's exactly-once guard.
func (m *Monitor) finish(ctx context.Context, run *types.ClusterTarget, logger zerolog.Logger) error {
	var stragglers []string
	for _, key := range run.Nodes {
		rec, err := m.store.GetNode(key)
		if err != nil {
			stragglers = append(stragglers, key)
			continue
		}
		switch rec.ReprovisionStatus {
		case types.ReprovisionCompleted, types.ReprovisionClustered:
		default:
			stragglers = append(stragglers, key)
		}
	}

	if len(stragglers) > 0 {
		logger.Warn().Strs("nodes", stragglers).Msg("run finished with incomplete nodes, cluster formation not triggered")
		return fmt.Errorf("run %s: nodes did not complete: %s", run.RunID, strings.Join(stragglers, ", "))
	}

	fired, err := m.store.MarkTriggerFired(run.RunID)
	if err != nil {
		return fmt.Errorf("failed to arm formation trigger: %w", err)
	}
	if !fired {
		logger.Info().Msg("all nodes completed; formation already triggered elsewhere")
		return nil
	}

	logger.Info().Msg("all nodes completed, triggering cluster formation")
	return m.form(ctx, run)
}

// reenter moves a TIMEOUT node back into polling under the repoll policy.
func (m *Monitor) reenter(key string) error {
	_, err := m.store.UpdateNode(key, func(r *types.NodeRecord) error {
		r.ReprovisionStatus = types.ReprovisionInProgress
		return nil
	})
	if err == nil {
		nodeLog := log.WithNode(key)
		nodeLog.Info().Str("phase", "monitor").Msg("timed-out node reachable again, re-entering poll loop")
	}
	return err
}
