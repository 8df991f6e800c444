package remote

import (
	"context"
	"os/exec"
	"strings"

	"github.com/sddcinfo/provisioning-server/pkg/types"
)

// IPMIExecutor drives a node's BMC by shelling out to ipmitool over the
// lanplus interface. It is the out-of-band path: it works when the node's
// OS is unreachable, so it serves as the boot-device fallback and the
// emergency power trigger.
type IPMIExecutor struct {
	Addr     string
	User     string
	Password string

	// runCmd is swappable for tests
	runCmd func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewIPMIExecutor creates an executor for one BMC.
func NewIPMIExecutor(addr, user, password string) *IPMIExecutor {
	return &IPMIExecutor{
		Addr:     addr,
		User:     user,
		Password: password,
		runCmd: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Run executes an ipmitool subcommand, e.g. "chassis bootdev pxe" or
// "power cycle". The command string is split on spaces; node keys and
// addresses never pass through it.
func (e *IPMIExecutor) Run(ctx context.Context, command string) (string, error) {
	args := []string{"-I", "lanplus", "-H", e.Addr, "-U", e.User, "-P", e.Password}
	args = append(args, strings.Fields(command)...)

	output, err := e.runCmd(ctx, "ipmitool", args...)
	if err != nil {
		return string(output), &types.RemoteCommandError{
			Op:     "ipmitool " + command,
			Output: strings.TrimSpace(string(output)),
			Err:    err,
		}
	}
	return string(output), nil
}
