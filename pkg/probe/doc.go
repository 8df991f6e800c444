/*
Package probe provides the reachability and readiness checks used against
fleet nodes.

TCPProber is the cheap liveness check run before any expensive
authenticated operation: a node that cannot even accept a TCP connection
is classified unreachable. HTTPProber is the external readiness signal the
completion monitor polls: a node whose management service answers inside
the expected status range counts as installed and ready.

Both probes take a context and bound their own work with a timeout; they
never hang past it.
*/
package probe
