package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
listen_addr: ":9090"
state_path: /tmp/state.db
template_dir: /srv/templates
session_dir: /srv/sessions
kernel_url: http://10.0.0.1/boot/vmlinuz
initrd_url: http://10.0.0.1/boot/initrd
session_base_url: http://10.0.0.1/sessions
nodes:
  - name: node1
    mac: AA:BB:CC:DD:EE:01
    management_ip: 10.0.0.11
    secondary_ip: 10.1.0.11
    bmc_addr: 10.2.0.11
    role: primary
  - name: node2
    mac: aa-bb-cc-dd-ee-02
    management_ip: 10.0.0.12
    secondary_ip: 10.1.0.12
    bmc_addr: 10.2.0.12
ssh:
  user: ops
  private_key_path: /etc/provision/id_ed25519
ipmi:
  user: admin
  password: secret
reprovision:
  node_delay: 30s
  node_deadline: 45m
  stuck_node_policy: repoll
cluster:
  name: lab
  primary: node1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Len(t, cfg.Nodes, 2)
	assert.Equal(t, "ops", cfg.SSH.User)

	// Defaults survive partial override.
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, 3, cfg.Reprovision.ResetRetries)
	assert.Equal(t, 15*time.Second, cfg.Reprovision.PollInterval.Std())

	// Durations parse from human-readable strings.
	assert.Equal(t, 30*time.Second, cfg.Reprovision.NodeDelay.Std())
	assert.Equal(t, 45*time.Minute, cfg.Reprovision.NodeDeadline.Std())
	assert.Equal(t, "repoll", cfg.Reprovision.StuckNodePolicy)
}

func TestNodeKeyNormalization(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	key, err := cfg.Nodes[0].Key()
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", key)

	key, err = cfg.Nodes[1].Key()
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:02", key)

	n, ok := cfg.NodeByKey("aa:bb:cc:dd:ee:02")
	require.True(t, ok)
	assert.Equal(t, "node2", n.Name)
}

func TestPrimaryNode(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	p, err := cfg.PrimaryNode()
	require.NoError(t, err)
	assert.Equal(t, "node1", p.Name)
}

func TestValidateRejectsUnknownPrimary(t *testing.T) {
	body := `
nodes:
  - name: node1
    mac: aa:bb:cc:dd:ee:01
cluster:
  primary: ghost
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidateRejectsDuplicateKeys(t *testing.T) {
	body := `
nodes:
  - name: node1
    mac: aa:bb:cc:dd:ee:01
  - name: node2
    mac: AA:BB:CC:DD:EE:01
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share key")
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	body := `
reprovision:
  stuck_node_policy: sometimes
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck_node_policy")
}

func TestValidateRejectsInvertedTimeouts(t *testing.T) {
	body := `
reprovision:
  inner_timeout: 10s
  outer_timeout: 5s
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outer_timeout")
}
