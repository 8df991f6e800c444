/*
Package config loads the server's YAML configuration: the fleet inventory
(name, MAC, management and secondary addresses, BMC address, role), SSH and
IPMI credentials, reprovision tunables (retry bounds, delays, per-node
deadline, poll interval, layered remote timeouts, stuck-node policy) and
the cluster-formation settings including the designated primary node.

Load applies defaults before unmarshalling and validates the result:
malformed or duplicate node keys, an unknown primary, an inverted
inner/outer timeout pair or an unknown stuck-node policy are configuration
errors that abort startup rather than surfacing mid-run.
*/
package config
