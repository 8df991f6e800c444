/*
Package boot decides what a PXE-booting node should do next.

Engine.Decide consults the state store: a node whose install status is
DONE gets a boot-local-disk script with no state mutation; any other node
(including one the store has never seen) gets an install script after its
per-node session has been prepared and its status set to INSTALLING.
Malformed keys are rejected before any record can be created. When session
preparation fails, the returned script reports the error and drops to a
shell so the node halts visibly instead of boot-looping.

SessionPreparer materializes the session: it picks the node-specific
template directory or falls back to the default, fully recreates the
per-node workspace, substitutes the node key into user-data, copies
meta-data verbatim, and always writes a network-config, defaulting to an
explicit empty-but-valid document when no override exists.
*/
package boot
