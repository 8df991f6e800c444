/*
Package api is the HTTP surface of the provisioning server.

Node-facing endpoints dispatch on the action query parameter under "/"
so iPXE firmware and installer hooks only ever need one URL: boot
returns the node's script as plain text, callback records the install
status a node reports about itself. Operator-facing actions (status
page, reset, delete) share the same dispatch. /health and /metrics are
for machines.
*/
package api
