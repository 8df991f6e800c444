/*
Package log provides structured logging for the provisioning server using
zerolog.

Init configures the global logger once at process start (level plus JSON or
console output); the rest of the codebase obtains child loggers through
WithComponent, WithNode and WithRun so every log line carries the component
name and, for per-node operations, the node key. Failures are always logged
with the node key and the phase that failed.
*/
package log
