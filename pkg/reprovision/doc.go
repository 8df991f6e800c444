/*
Package reprovision resets nodes and reboots them into the installer.

The per-node state machine: reset install state in the store (bounded
retries with fixed backoff, fatal on exhaustion), probe reachability with
a cheap TCP check, and for reachable nodes set the boot device to network
(ordered best-effort methods, never fatal) and issue a reboot through an
ordered fallback list (graceful shutdown, forced reboot, BMC power cycle)
where exhaustion is a per-node failure. A node failing the cheap probe is
classified unreachable and counts as successfully triggered: it is already
down or mid-reboot and commanding it cannot help.

Batch mode processes nodes sequentially with a configurable inter-node
delay, honors operator cancellation between nodes, and aggregates per-node
outcomes into a summary that distinguishes full success, partial success
and total failure. The batch returns once reboot commands are issued;
waiting for installs to finish is the completion monitor's job.
*/
package reprovision
