package probe

import (
	"context"
	"time"
)

// Type represents the kind of probe
type Type string

const (
	TypeHTTP Type = "http"
	TypeTCP  Type = "tcp"
)

// Result represents the outcome of a probe
type Result struct {
	Reachable bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Prober is the interface all node probes implement. The coordinator uses
// a cheap TCP probe before any expensive authenticated work; the
// completion monitor uses an HTTP probe as the external readiness signal.
type Prober interface {
	// Probe performs the check and returns the result
	Probe(ctx context.Context) Result

	// Type returns the probe kind
	Type() Type
}
