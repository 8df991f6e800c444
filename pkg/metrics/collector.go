package metrics

import (
	"time"

	"github.com/sddcinfo/provisioning-server/pkg/log"
	"github.com/sddcinfo/provisioning-server/pkg/types"
)

// NodeLister is the slice of the store the collector needs.
type NodeLister interface {
	ListNodes() ([]*types.NodeRecord, error)
}

// Collector periodically refreshes the fleet-state gauges from the store.
type Collector struct {
	store  NodeLister
	stopCh chan struct{}
}

// NewCollector creates a new fleet metrics collector
func NewCollector(store NodeLister) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	records, err := c.store.ListNodes()
	if err != nil {
		logger := log.WithComponent("metrics")
		logger.Warn().Err(err).Msg("failed to list nodes for collection")
		return
	}

	byStatus := make(map[types.InstallStatus]int)
	byReprovision := make(map[types.ReprovisionStatus]int)
	for _, r := range records {
		byStatus[r.Status]++
		byReprovision[r.ReprovisionStatus]++
	}

	// Reset so statuses with no nodes report zero instead of going stale.
	NodesByStatus.Reset()
	NodesByReprovisionStatus.Reset()
	for _, s := range []types.InstallStatus{types.StatusNew, types.StatusInstalling, types.StatusDone, types.StatusFailed} {
		NodesByStatus.WithLabelValues(string(s)).Set(float64(byStatus[s]))
	}
	for s, n := range byReprovision {
		if s == types.ReprovisionNone {
			continue
		}
		NodesByReprovisionStatus.WithLabelValues(string(s)).Set(float64(n))
	}
}
