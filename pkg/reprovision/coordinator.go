package reprovision

import (
	"context"
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

// Phase names the step of the per-node state machine an outcome refers to.
type Phase string

const (
	PhaseReset      Phase = "reset"
	PhaseProbe      Phase = "probe"
	PhaseBootDevice Phase = "boot-device"
	PhaseReboot     Phase = "reboot"
)

// Outcome is the terminal result for one node.
type Outcome struct {
	Node        config.Node
	Phase       Phase
	Unreachable bool
	Err         error
}

// Success reports whether the node was successfully triggered. An
// unreachable node counts as success: it is already down or mid-reboot
// and a reboot command could not help it.
func (o Outcome) Success() bool { return o.Err == nil }

// Summary aggregates a batch run.
type Summary struct {
	Outcomes []Outcome
}

// Failed returns the names of nodes whose outcome was a failure.
func (s *Summary) Failed() []string {
	var failed []string
	for _, o := range s.Outcomes {
		if !o.Success() {
			failed = append(failed, o.Node.Name)
		}
	}
	return failed
}

// Succeeded returns the count of successful nodes.
func (s *Summary) Succeeded() int {
	return len(s.Outcomes) - len(s.Failed())
}

// String renders the operator-facing summary line, distinguishing full
// success, partial success and total failure.
func (s *Summary) String() string {
	total := len(s.Outcomes)
	failed := s.Failed()
	if len(failed) == 0 {
		return fmt.Sprintf("%d/%d nodes processed successfully", total, total)
	}
	return fmt.Sprintf("%d/%d nodes processed successfully (failed: %s)",
		s.Succeeded(), total, strings.Join(failed, ", "))
}

// ProbeFunc is the cheap liveness check run before any authenticated work.
type ProbeFunc func(ctx context.Context, n config.Node) bool

// Coordinator drives nodes through the reprovision state machine:
// reset install state, probe, best-effort boot-device set, reboot with
// ordered fallbacks.
type Coordinator struct {
	store      store.Store
	probe      ProbeFunc
	bootDevice []Strategy
	reboot     []Strategy

	resetRetries int
	resetBackoff time.Duration
	nodeDelay    time.Duration
}

// NewCoordinator creates a coordinator.
func NewCoordinator(s store.Store, probe ProbeFunc, bootDevice, reboot []Strategy, cfg config.ReprovisionConfig) *Coordinator {
	return &Coordinator{
		store:        s,
		probe:        probe,
		bootDevice:   bootDevice,
		reboot:       reboot,
		resetRetries: cfg.ResetRetries,
		resetBackoff: cfg.ResetBackoff.Std(),
		nodeDelay:    cfg.NodeDelay.Std(),
	}
}

// ReprovisionNode runs the per-node state machine to its terminal state.
func (c *Coordinator) ReprovisionNode(ctx context.Context, n config.Node) Outcome {
	key, err := n.Key()
	if err != nil {
		return Outcome{Node: n, Phase: PhaseReset, Err: err}
	}
	logger := log.WithNode(key)

	// 1. Reset install state so the next PXE boot reinstalls. Bounded
	// retries with fixed backoff; exhaustion is fatal for this node.
	if err := c.resetState(ctx, key); err != nil {
		logger.Error().Err(err).Str("phase", string(PhaseReset)).Msg("reprovision failed")
		metrics.ReprovisionOutcomesTotal.WithLabelValues("reset_failed").Inc()
		return Outcome{Node: n, Phase: PhaseReset, Err: err}
	}

	// 2. Cheap liveness probe. An unreachable node is already down or
	// rebooting from a previous trigger; commanding it would be harmful
	// noise, so this is a success outcome.
	if !c.probe(ctx, n) {
		logger.Info().Str("phase", string(PhaseProbe)).Msg("node unreachable, treating as already rebooting")
		metrics.ReprovisionOutcomesTotal.WithLabelValues("unreachable").Inc()
		return Outcome{Node: n, Phase: PhaseProbe, Unreachable: true}
	}

	// 3. Best-effort boot-device set. Exhausting the fallbacks is logged
	// but never aborts: DHCP/boot-order defaults usually still netboot.
	c.setBootDevice(ctx, n, logger)

	// 4. Reboot with ordered fallbacks; first success wins.
	if err := c.rebootNode(ctx, n, logger); err != nil {
		logger.Error().Err(err).Str("phase", string(PhaseReboot)).Msg("reprovision failed")
		metrics.ReprovisionOutcomesTotal.WithLabelValues("reboot_failed").Inc()
		c.markError(key)
		return Outcome{Node: n, Phase: PhaseReboot, Err: err}
	}

	logger.Info().Str("phase", string(PhaseReboot)).Msg("reboot issued")
	metrics.ReprovisionOutcomesTotal.WithLabelValues("triggered").Inc()
	return Outcome{Node: n, Phase: PhaseReboot}
}

// ReprovisionAll processes nodes sequentially with an inter-node delay so
// shared boot infrastructure (DHCP, TFTP, the session server) is never
// saturated by a thundering herd. It honors ctx between nodes and returns
// the aggregated summary; it does not wait for installs to finish.
func (c *Coordinator) ReprovisionAll(ctx context.Context, nodes []config.Node) (*Summary, error) {
	summary := &Summary{}
	for i, n := range nodes {
		if i > 0 && c.nodeDelay > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(c.nodeDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Outcomes = append(summary.Outcomes, c.ReprovisionNode(ctx, n))
	}
	return summary, nil
}

func (c *Coordinator) resetState(ctx context.Context, key string) error {
	var lastErr error
	for attempt := 0; attempt <= c.resetRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.resetBackoff):
			}
		}
		_, lastErr = c.store.UpdateNode(key, func(r *types.NodeRecord) error {
			r.Status = types.StatusNew
			r.ReprovisionStatus = types.ReprovisionInProgress
			return nil
		})
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("state reset exhausted %d retries: %w", c.resetRetries, lastErr)
}

func (c *Coordinator) setBootDevice(ctx context.Context, n config.Node, logger zerolog.Logger) {
	for _, s := range c.bootDevice {
		if err := s.Apply(ctx, n); err != nil {
			logger.Warn().Err(err).Str("phase", string(PhaseBootDevice)).Str("method", s.Name()).Msg("boot device method failed")
			continue
		}
		logger.Info().Str("phase", string(PhaseBootDevice)).Str("method", s.Name()).Msg("boot device set to network")
		return
	}
	logger.Warn().Str("phase", string(PhaseBootDevice)).Msg("all boot device methods failed, relying on configured boot order")
}

func (c *Coordinator) rebootNode(ctx context.Context, n config.Node, logger zerolog.Logger) error {
	var lastErr error
	for _, s := range c.reboot {
		if err := s.Apply(ctx, n); err != nil {
			logger.Warn().Err(err).Str("phase", string(PhaseReboot)).Str("method", s.Name()).Msg("reboot method failed")
			lastErr = err
			continue
		}
		logger.Info().Str("method", s.Name()).Msg("reboot method succeeded")
		return nil
	}
	return fmt.Errorf("all reboot methods exhausted: %w", lastErr)
}

// markError records a per-node failure so the completion monitor does not
// wait out the full deadline for a node that was never rebooted.
func (c *Coordinator) markError(key string) {
	if _, err := c.store.UpdateNode(key, func(r *types.NodeRecord) error {
		r.ReprovisionStatus = types.ReprovisionError
		return nil
	}); err != nil {
		logger := log.WithNode(key)
		logger.Warn().Err(err).Msg("failed to record reprovision error")
	}
}
