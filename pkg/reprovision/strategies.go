package reprovision

import (
	"context"
	"time"

	"github.com/sddcinfo/provisioning-server/pkg/config"
	"github.com/sddcinfo/provisioning-server/pkg/remote"
)

// ExecutorFactory builds a remote executor for one node. Separate
// factories exist for the SSH (in-band) and IPMI (out-of-band) paths.
type ExecutorFactory func(n config.Node) (remote.Executor, error)

// Strategy is one method of acting on a node. Strategies are tried in
// order; the first success wins.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, n config.Node) error
}

// execStrategy runs a fixed command through an executor under supervised
// timeouts. Both SSH and IPMI strategies are instances of this; the
// factory decides the transport.
type execStrategy struct {
	name    string
	command string
	factory ExecutorFactory
	inner   time.Duration
	outer   time.Duration
}

func (s *execStrategy) Name() string { return s.name }

func (s *execStrategy) Apply(ctx context.Context, n config.Node) error {
	exec, err := s.factory(n)
	if err != nil {
		return err
	}
	_, err = remote.Supervise(ctx, s.inner, s.outer, s.name, func(ctx context.Context) (string, error) {
		return exec.Run(ctx, s.command)
	})
	return err
}

// pickPXE selects the first EFI boot entry that netboots and schedules it
// for the next boot only, leaving the permanent boot order alone.
const pickPXE = `efibootmgr -n "$(efibootmgr | sed -n 's/^Boot\([0-9A-Fa-f]\{4\}\)\*\? .*\(PXE\|Network\|IPv4\).*/\1/p' | head -n1)"`

// DefaultBootDeviceStrategies returns the ordered boot-device methods:
// in-band efibootmgr first, BMC bootdev override as fallback.
func DefaultBootDeviceStrategies(cfg *config.Config, sshFactory, ipmiFactory ExecutorFactory) []Strategy {
	inner := cfg.Reprovision.InnerTimeout.Std()
	outer := cfg.Reprovision.OuterTimeout.Std()
	return []Strategy{
		&execStrategy{name: "ssh-efibootmgr", command: pickPXE, factory: sshFactory, inner: inner, outer: outer},
		&execStrategy{name: "ipmi-bootdev-pxe", command: "chassis bootdev pxe", factory: ipmiFactory, inner: inner, outer: outer},
	}
}

// DefaultRebootStrategies returns the ordered reboot methods: graceful
// shutdown, immediate reboot, then the emergency BMC power cycle.
func DefaultRebootStrategies(cfg *config.Config, sshFactory, ipmiFactory ExecutorFactory) []Strategy {
	inner := cfg.Reprovision.InnerTimeout.Std()
	outer := cfg.Reprovision.OuterTimeout.Std()
	return []Strategy{
		&execStrategy{name: "ssh-graceful-reboot", command: "shutdown -r now", factory: sshFactory, inner: inner, outer: outer},
		&execStrategy{name: "ssh-forced-reboot", command: "reboot -f", factory: sshFactory, inner: inner, outer: outer},
		&execStrategy{name: "ipmi-power-cycle", command: "power cycle", factory: ipmiFactory, inner: inner, outer: outer},
	}
}
