package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sddcinfo/provisioning-server/pkg/config"
	"github.com/sddcinfo/provisioning-server/pkg/monitor"
	"github.com/sddcinfo/provisioning-server/pkg/store"
	"github.com/sddcinfo/provisioning-server/pkg/types"
)

func newWatchFixture(t *testing.T, keys []string) (store.Store, *config.Config, *types.ClusterTarget) {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := &config.Config{
		Reprovision: config.ReprovisionConfig{
			PollInterval:    config.Duration(10 * time.Millisecond),
			StuckNodePolicy: "manual",
		},
	}
	for i, k := range keys {
		cfg.Nodes = append(cfg.Nodes, config.Node{Name: string(rune('a' + i)), MAC: k})
		_, err := s.UpdateNode(k, func(r *types.NodeRecord) error {
			r.Status = types.StatusNew
			r.ReprovisionStatus = types.ReprovisionInProgress
			return nil
		})
		require.NoError(t, err)
	}

	run := &types.ClusterTarget{
		RunID:        "run-1",
		Nodes:        keys,
		Primary:      "a",
		StartedAt:    time.Now().UTC(),
		NodeDeadline: time.Minute,
	}
	require.NoError(t, s.SaveRun(run))
	return s, cfg, run
}

func TestWatchAndReportRunsMonitorAfterPartialBatch(t *testing.T) {
	keys := []string{"aa:bb:cc:dd:ee:01"}
	s, cfg, run := newWatchFixture(t, keys)

	// node "b" never rebooted, but "a" did: the monitor must still drive
	// it to COMPLETED before the batch failure surfaces.
	ready := func(ctx context.Context, n config.Node) bool { return true }
	form := func(ctx context.Context, r *types.ClusterTarget) error { return nil }
	mon := monitor.New(s, cfg, ready, form)

	var out bytes.Buffer
	err := watchAndReport(context.Background(), &out, mon, run, []string{"b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b")

	rec, err2 := s.GetNode(keys[0])
	require.NoError(t, err2)
	assert.Equal(t, types.ReprovisionCompleted, rec.ReprovisionStatus,
		"rebooted nodes must be watched to completion despite the batch failure")
}

func TestWatchAndReportCleanRun(t *testing.T) {
	keys := []string{"aa:bb:cc:dd:ee:01"}
	s, cfg, run := newWatchFixture(t, keys)

	ready := func(ctx context.Context, n config.Node) bool { return true }
	form := func(ctx context.Context, r *types.ClusterTarget) error { return nil }
	mon := monitor.New(s, cfg, ready, form)

	var out bytes.Buffer
	require.NoError(t, watchAndReport(context.Background(), &out, mon, run, nil))
	assert.Contains(t, out.String(), "All nodes reinstalled and clustered.")
}

func TestDelayOverrideHonorsExplicitZero(t *testing.T) {
	cfg := &config.Config{
		Reprovision: config.ReprovisionConfig{NodeDelay: config.Duration(30 * time.Second)},
	}

	applyDelayOverride(reprovisionCmd, cfg)
	assert.Equal(t, config.Duration(30*time.Second), cfg.Reprovision.NodeDelay,
		"unset flag keeps the configured delay")

	require.NoError(t, reprovisionCmd.Flags().Set("delay", "0"))
	applyDelayOverride(reprovisionCmd, cfg)
	assert.Equal(t, config.Duration(0), cfg.Reprovision.NodeDelay,
		"an explicit zero must override the configuration")
}
