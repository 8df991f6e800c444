package boot

import (
	"errors"
	"fmt"

	"github.com/sddcinfo/provisioning-server/pkg/log"
	"github.com/sddcinfo/provisioning-server/pkg/store"
	"github.com/sddcinfo/provisioning-server/pkg/types"
)

// Decision classifies a boot script so callers do not have to inspect
// its text.
type Decision string

const (
	DecisionInstall Decision = "install"
	DecisionLocal   Decision = "local"
	DecisionError   Decision = "error"
)

// ScriptConfig holds the URLs baked into install boot scripts.
type ScriptConfig struct {
	KernelURL      string
	InitrdURL      string
	SessionBaseURL string
}

// Engine turns node state into an iPXE boot script. A node whose install
// status is DONE boots its local disk; everything else gets the installer
// pointed at a freshly prepared session.
type Engine struct {
	store    store.Store
	preparer *SessionPreparer
	cfg      ScriptConfig
}

// NewEngine creates a boot decision engine.
func NewEngine(s store.Store, preparer *SessionPreparer, cfg ScriptConfig) *Engine {
	return &Engine{
		store:    s,
		preparer: preparer,
		cfg:      cfg,
	}
}

// Decide returns the boot script for the node identified by rawKey,
// along with the decision it encodes. Malformed keys return
// types.ErrInvalidKey without creating a record. A session-preparation
// failure is translated into a script that reports the error and drops
// to a shell instead of boot-looping; store failures are returned to
// the caller.
//
// Decide is safe to call repeatedly for the same key: the install path
// re-prepares the same session content and re-sets the same status.
func (e *Engine) Decide(rawKey string) (string, Decision, error) {
	key, err := types.NormalizeKey(rawKey)
	if err != nil {
		return "", "", err
	}
	logger := log.WithNode(key)

	rec, err := e.store.GetNode(key)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return "", "", err
	}

	if rec != nil && rec.Status == types.StatusDone {
		logger.Debug().Msg("boot decision: local disk")
		return localDiskScript(key), DecisionLocal, nil
	}

	if _, err := e.preparer.Prepare(key); err != nil {
		logger.Error().Err(err).Str("phase", "session-prepare").Msg("install decision failed")
		return errorScript(key, err), DecisionError, nil
	}

	if _, err := e.store.UpdateNode(key, func(r *types.NodeRecord) error {
		r.Status = types.StatusInstalling
		return nil
	}); err != nil {
		return "", "", err
	}

	logger.Info().Msg("boot decision: install")
	return e.installScript(key), DecisionInstall, nil
}

// installScript boots the installer kernel pointed at the node's session.
func (e *Engine) installScript(key string) string {
	sessionURL := fmt.Sprintf("%s/%s/", e.cfg.SessionBaseURL, key)
	return fmt.Sprintf(`#!ipxe
echo Installing node %s
kernel %s autoinstall ds=nocloud-net;s=%s ip=dhcp ---
initrd %s
boot
`, key, e.cfg.KernelURL, sessionURL, e.cfg.InitrdURL)
}

// localDiskScript hands control to the installed system.
func localDiskScript(key string) string {
	return fmt.Sprintf(`#!ipxe
echo Node %s is installed, booting from local disk
sanboot --no-describe --drive 0x80 || exit
`, key)
}

// errorScript reports the failure on console and halts at a shell so the
// node does not loop through the installer forever.
func errorScript(key string, err error) string {
	return fmt.Sprintf(`#!ipxe
echo Provisioning error for node %s
echo %v
echo Halting; fix the server-side templates and reboot this node.
shell
`, key, err)
}
