package store

import (
	"github.com/sddcinfo/provisioning-server/pkg/types"
)

// Store is the durable node-lifecycle state store. Implementations must
// make every mutation a single atomic read-decode-mutate-encode-write
// critical section: two callers racing on the same key never interleave
// inside UpdateNode, and a crash mid-write never corrupts the map.
type Store interface {
	// Nodes
	GetNode(key string) (*types.NodeRecord, error)
	ListNodes() ([]*types.NodeRecord, error)
	// UpdateNode applies mutate to the current record (or a fresh default
	// when the key is unknown; creation is implicit on first write) and
	// persists the whole record atomically. Reprovision-status transitions
	// are validated; an out-of-order write fails without persisting.
	UpdateNode(key string, mutate func(*types.NodeRecord) error) (*types.NodeRecord, error)
	DeleteNode(key string) error

	// Reprovision runs
	GetRun(runID string) (*types.ClusterTarget, error)
	SaveRun(run *types.ClusterTarget) error
	// MarkTriggerFired atomically test-and-sets the run's single-trigger
	// flag. It returns true for exactly one caller per run.
	MarkTriggerFired(runID string) (bool, error)

	Close() error
}
