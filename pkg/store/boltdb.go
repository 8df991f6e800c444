package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/sddcinfo/provisioning-server/pkg/types"
)

var (
	// Bucket names. Install state and fleet metadata are kept as two
	// documents keyed the same way: install state is the small,
	// high-churn record the boot path reads, fleet metadata carries the
	// descriptive and coordinator-facing fields.
	bucketInstallState = []byte("install_state")
	bucketFleetMeta    = []byte("fleet_meta")
	bucketRuns         = []byte("runs")
)

// lockTimeout bounds the wait for the database file lock. A lock held by
// another process surfaces as a StoreLockError rather than a silent hang.
const lockTimeout = 5 * time.Second

// installState is the per-key install document.
type installState struct {
	Status     types.InstallStatus `json:"status"`
	LastUpdate time.Time           `json:"last_update"`
}

// fleetMeta is the per-key companion document.
type fleetMeta struct {
	Hostname          string                  `json:"hostname,omitempty"`
	ManagementIP      string                  `json:"management_ip,omitempty"`
	SecondaryIP       string                  `json:"secondary_ip,omitempty"`
	ReprovisionStatus types.ReprovisionStatus `json:"reprovision_status,omitempty"`
	ClusterRole       string                  `json:"cluster_role,omitempty"`
}

// BoltStore implements Store using bbolt. bbolt's single-writer
// transactions give the full read-mutate-write sequence mutual exclusion,
// and its copy-on-write B+tree with fsync-on-commit makes every write
// all-or-nothing across crashes.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens (creating if necessary) the state database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, &types.StoreLockError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketInstallState, bucketFleetMeta, bucketRuns} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: path}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// GetNode returns the record for key, or types.ErrNotFound.
func (s *BoltStore) GetNode(key string) (*types.NodeRecord, error) {
	var rec *types.NodeRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = readRecord(tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListNodes returns all records, one per key.
func (s *BoltStore) ListNodes() ([]*types.NodeRecord, error) {
	var records []*types.NodeRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstallState).ForEach(func(k, v []byte) error {
			rec, err := readRecord(tx, string(k))
			if err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

// UpdateNode applies mutate to the current record (a default NEW record
// when the key is unknown) and writes the result back, all inside one
// write transaction.
func (s *BoltStore) UpdateNode(key string, mutate func(*types.NodeRecord) error) (*types.NodeRecord, error) {
	var rec *types.NodeRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		current, err := readRecord(tx, key)
		if errors.Is(err, types.ErrNotFound) {
			current = &types.NodeRecord{Key: key, Status: types.StatusNew}
		} else if err != nil {
			return err
		}

		prevReprovision := current.ReprovisionStatus
		if err := mutate(current); err != nil {
			return err
		}
		current.Key = key

		if !prevReprovision.CanTransition(current.ReprovisionStatus) {
			return fmt.Errorf("node %s: illegal reprovision transition %q -> %q",
				key, prevReprovision, current.ReprovisionStatus)
		}
		if !types.ValidInstallStatus(current.Status) {
			return fmt.Errorf("node %s: invalid status %q", key, current.Status)
		}

		current.LastUpdate = time.Now().UTC()
		if err := writeRecord(tx, current); err != nil {
			return err
		}
		rec = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteNode removes the key entirely. Deleting an unknown key is a no-op.
func (s *BoltStore) DeleteNode(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketInstallState).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(bucketFleetMeta).Delete([]byte(key))
	})
}

// SaveRun persists a reprovision run.
func (s *BoltStore) SaveRun(run *types.ClusterTarget) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRuns).Put([]byte(run.RunID), data)
	})
}

// GetRun returns the run with the given ID, or types.ErrNotFound.
func (s *BoltStore) GetRun(runID string) (*types.ClusterTarget, error) {
	var run types.ClusterTarget
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// MarkTriggerFired test-and-sets the run's trigger flag inside a single
// write transaction, so racing monitor polls observe exactly one true.
func (s *BoltStore) MarkTriggerFired(runID string) (bool, error) {
	fired := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
		}
		var run types.ClusterTarget
		if err := json.Unmarshal(data, &run); err != nil {
			return err
		}
		if run.TriggerFired {
			return nil
		}
		run.TriggerFired = true
		updated, err := json.Marshal(&run)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(runID), updated); err != nil {
			return err
		}
		fired = true
		return nil
	})
	return fired, err
}

// readRecord composes a NodeRecord from both documents. Must be called
// inside a transaction so the two reads see one snapshot.
func readRecord(tx *bolt.Tx, key string) (*types.NodeRecord, error) {
	data := tx.Bucket(bucketInstallState).Get([]byte(key))
	if data == nil {
		return nil, fmt.Errorf("node %s: %w", key, types.ErrNotFound)
	}
	var state installState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("node %s: corrupt install state: %w", key, err)
	}

	rec := &types.NodeRecord{
		Key:        key,
		Status:     state.Status,
		LastUpdate: state.LastUpdate,
	}

	if data := tx.Bucket(bucketFleetMeta).Get([]byte(key)); data != nil {
		var meta fleetMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("node %s: corrupt fleet metadata: %w", key, err)
		}
		rec.Hostname = meta.Hostname
		rec.ManagementIP = meta.ManagementIP
		rec.SecondaryIP = meta.SecondaryIP
		rec.ReprovisionStatus = meta.ReprovisionStatus
		rec.ClusterRole = meta.ClusterRole
	}
	return rec, nil
}

// writeRecord splits a NodeRecord back into its two documents and writes
// both; the surrounding transaction makes the pair atomic.
func writeRecord(tx *bolt.Tx, rec *types.NodeRecord) error {
	state, err := json.Marshal(installState{
		Status:     rec.Status,
		LastUpdate: rec.LastUpdate,
	})
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketInstallState).Put([]byte(rec.Key), state); err != nil {
		return err
	}

	meta, err := json.Marshal(fleetMeta{
		Hostname:          rec.Hostname,
		ManagementIP:      rec.ManagementIP,
		SecondaryIP:       rec.SecondaryIP,
		ReprovisionStatus: rec.ReprovisionStatus,
		ClusterRole:       rec.ClusterRole,
	})
	if err != nil {
		return err
	}
	return tx.Bucket(bucketFleetMeta).Put([]byte(rec.Key), meta)
}
