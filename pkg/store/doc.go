/*
Package store provides BoltDB-backed persistence for node lifecycle state.

The store maps node keys (canonical MAC addresses) to lifecycle records and
reprovision runs to their targets. Two execution contexts share it: the
short-lived HTTP handlers (boot requests, install callbacks) and the
long-running reprovision coordinator and completion monitor. Every access
is a critical section under bbolt's exclusive writer lock.

# Contract

  - UpdateNode is the only mutation primitive: it reads the current record
    (or a fresh NEW record for an unknown key), applies the caller's
    mutator, validates the reprovision-status transition, and writes the
    whole record back inside one bbolt Update transaction. There is no
    field-level update; replacement is always whole-record.
  - Writes are all-or-nothing: bbolt's copy-on-write B+tree with fsync on
    commit means a crash mid-write leaves the previous consistent state.
  - The database file lock is acquired with a bounded timeout; failure
    surfaces as types.StoreLockError, never a silent hang or skip.
  - MarkTriggerFired is the exactly-once guard for cluster formation: an
    atomic test-and-set on the run document that returns true for exactly
    one caller.

# Layout

Three buckets hold JSON documents:

	install_state  key -> {status, last_update}       (boot path, high churn)
	fleet_meta     key -> {hostname, addresses,
	                       reprovision_status, role}  (companion document)
	runs           run_id -> ClusterTarget

GetNode and UpdateNode compose and split the two per-key documents inside
one transaction, so callers always see a single consistent NodeRecord.
*/
package store
