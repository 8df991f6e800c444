/*
Package remote executes commands against fleet nodes. It is the only
blocking surface in the system: reachability probes aside, every remote
interaction goes through an Executor here.

SSHExecutor is the in-band path (public-key auth, per-call dial).
IPMIExecutor is the out-of-band path through the node's BMC via ipmitool;
it works when the OS is down, which makes it the boot-device fallback and
the emergency power trigger.

Supervise layers two timeouts over any call: the inner timeout is passed
to the primitive through its context, and an independent outer bound
forcibly abandons the call if the primitive itself hangs. Callers never
rely on the inner primitive's own timeout alone.
*/
package remote
