/*
Package metrics exposes Prometheus instrumentation for the provisioning
server: fleet-state gauges (nodes by install and reprovision status),
counters for boot requests, install callbacks, API requests, per-node
reprovision outcomes and cluster-formation runs, and a histogram for the
completion monitor's poll cycles.

Collector refreshes the fleet gauges from the state store on a fixed
interval. Handler serves the registry for mounting at /metrics.
*/
package metrics
