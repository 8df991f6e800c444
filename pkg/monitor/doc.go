/*
Package monitor watches a reprovision run to completion.

The completion monitor is independent of the batch reprovision operation:
the batch returns once reboot commands are issued, the monitor keeps
polling the state store on a fixed interval. Per tick, each targeted node
still in flight is checked against the external readiness signal (the
node's management service answering health checks) and against the run's
per-node deadline; the first marks it COMPLETED, the second TIMEOUT.

When every targeted node is COMPLETED the monitor arms the run's trigger
flag through the store's atomic test-and-set and invokes cluster
formation only if it won the flag, so racing poll loops — or a concurrent
monitor on the same run — fire formation exactly once.

A node stuck at TIMEOUT that later answers readiness checks is handled by
the configured stuck-node policy: "manual" leaves it for an operator
reset, "repoll" re-enters it into the loop.
*/
package monitor
