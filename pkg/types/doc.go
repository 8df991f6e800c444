/*
Package types defines the shared data model for the provisioning server.

NodeRecord is the per-node lifecycle record, keyed by the node's boot
interface MAC address in canonical lower-case colon-separated form
(see NormalizeKey). Its InstallStatus field drives boot decisions while
ReprovisionStatus tracks the reprovision coordinator independently;
ReprovisionStatus transitions are guarded by CanTransition so an
out-of-order write is rejected rather than silently accepted.

ClusterTarget describes one reprovision run: the targeted node keys, the
designated primary, the per-node completion deadline, and the
single-trigger flag the completion monitor flips exactly once before
invoking cluster formation.

The error types here (StoreLockError, RemoteTimeoutError,
RemoteCommandError, PreconditionError) are the vocabulary every other
package uses to classify failures: validation errors surface as client
errors, per-node remote failures are isolated and aggregated, and only
store- or configuration-level errors abort an enclosing operation.
*/
package types
