package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// InstallStatus is the install lifecycle state of a node. It drives the
// boot decision: anything other than DONE gets an installer boot.
type InstallStatus string

const (
	StatusNew        InstallStatus = "NEW"
	StatusInstalling InstallStatus = "INSTALLING"
	StatusDone       InstallStatus = "DONE"
	StatusFailed     InstallStatus = "FAILED"
)

// ValidInstallStatus reports whether s is one of the known install states.
func ValidInstallStatus(s InstallStatus) bool {
	switch s {
	case StatusNew, StatusInstalling, StatusDone, StatusFailed:
		return true
	}
	return false
}

// ReprovisionStatus tracks the coordinator's view of a node, independent of
// the install status.
type ReprovisionStatus string

const (
	ReprovisionNone       ReprovisionStatus = ""
	ReprovisionInProgress ReprovisionStatus = "IN_PROGRESS"
	ReprovisionCompleted  ReprovisionStatus = "COMPLETED"
	ReprovisionTimeout    ReprovisionStatus = "TIMEOUT"
	ReprovisionError      ReprovisionStatus = "ERROR"
	ReprovisionClustered  ReprovisionStatus = "CLUSTERED"
)

// CanTransition reports whether moving from s to next is a legal
// reprovision-status transition. IN_PROGRESS only advances to a terminal
// state, COMPLETED may advance to CLUSTERED, and a new run may re-enter
// IN_PROGRESS from empty or any terminal state. Same-value writes are
// always allowed so idempotent updates are not rejected.
func (s ReprovisionStatus) CanTransition(next ReprovisionStatus) bool {
	if s == next {
		return true
	}
	switch next {
	case ReprovisionInProgress:
		return s != ReprovisionInProgress
	case ReprovisionCompleted, ReprovisionTimeout, ReprovisionError:
		return s == ReprovisionInProgress
	case ReprovisionClustered:
		return s == ReprovisionCompleted
	}
	return false
}

// macPattern matches a canonical lower-case MAC address.
var macPattern = regexp.MustCompile(`^([0-9a-f]{2}:){5}[0-9a-f]{2}$`)

// NormalizeKey canonicalizes a node key (a MAC address): lower-cased,
// colon-separated. Dash separators are accepted on input. Anything else
// returns ErrInvalidKey.
func NormalizeKey(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", ":")
	if !macPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, raw)
	}
	return key, nil
}

// NodeRecord is the lifecycle record for one physical node, keyed by its
// boot interface MAC address. Hostname and addresses are descriptive
// registration data; Status and ReprovisionStatus are the mutable state.
type NodeRecord struct {
	Key               string            `json:"key"`
	Status            InstallStatus     `json:"status"`
	ReprovisionStatus ReprovisionStatus `json:"reprovision_status,omitempty"`
	LastUpdate        time.Time         `json:"last_update"`
	Hostname          string            `json:"hostname,omitempty"`
	ManagementIP      string            `json:"management_ip,omitempty"`
	SecondaryIP       string            `json:"secondary_ip,omitempty"`
	ClusterRole       string            `json:"cluster_role,omitempty"`
}

// ClusterTarget is the set of nodes selected for one reprovision run plus
// the run-level bookkeeping the completion monitor needs.
type ClusterTarget struct {
	RunID        string        `json:"run_id"`
	Nodes        []string      `json:"nodes"`
	Primary      string        `json:"primary"`
	StartedAt    time.Time     `json:"started_at"`
	NodeDeadline time.Duration `json:"node_deadline"`
	TriggerFired bool          `json:"trigger_fired"`
}
