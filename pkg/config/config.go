package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sddcinfo/provisioning-server/pkg/types"
)

// Duration wraps time.Duration so YAML values like "90s" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Node describes one configured fleet member.
type Node struct {
	Name         string `yaml:"name"`
	MAC          string `yaml:"mac"`
	ManagementIP string `yaml:"management_ip"`
	SecondaryIP  string `yaml:"secondary_ip"`
	BMCAddr      string `yaml:"bmc_addr"`
	Role         string `yaml:"role"`
}

// Key returns the node's canonical store key.
func (n Node) Key() (string, error) {
	return types.NormalizeKey(n.MAC)
}

// SSHConfig holds credentials for remote command execution.
type SSHConfig struct {
	User           string `yaml:"user"`
	Port           int    `yaml:"port"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// IPMIConfig holds BMC credentials shared across the fleet.
type IPMIConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ReprovisionConfig tunes the coordinator and the completion monitor.
type ReprovisionConfig struct {
	ResetRetries int      `yaml:"reset_retries"`
	ResetBackoff Duration `yaml:"reset_backoff"`
	NodeDelay    Duration `yaml:"node_delay"`
	PollInterval Duration `yaml:"poll_interval"`
	NodeDeadline Duration `yaml:"node_deadline"`

	// StuckNodePolicy decides what happens to a node marked TIMEOUT that
	// later becomes reachable: "manual" leaves it for an operator reset,
	// "repoll" re-enters it into the polling loop.
	StuckNodePolicy string `yaml:"stuck_node_policy"`

	// ReadyURL is a format string with one %s for the management IP; the
	// completion monitor considers a node done once this URL answers.
	ReadyURL string `yaml:"ready_url"`

	InnerTimeout Duration `yaml:"inner_timeout"`
	OuterTimeout Duration `yaml:"outer_timeout"`
}

// ClusterConfig tunes cluster formation. Create and join commands run
// much longer than the reprovision primitives, so they carry their own
// supervised timeouts.
type ClusterConfig struct {
	Name    string `yaml:"name"`
	Primary string `yaml:"primary"`

	InnerTimeout Duration `yaml:"inner_timeout"`
	OuterTimeout Duration `yaml:"outer_timeout"`
}

// Config is the top-level server configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	StatePath   string `yaml:"state_path"`
	TemplateDir string `yaml:"template_dir"`
	SessionDir  string `yaml:"session_dir"`

	// Boot script material served to iPXE clients.
	KernelURL      string `yaml:"kernel_url"`
	InitrdURL      string `yaml:"initrd_url"`
	SessionBaseURL string `yaml:"session_base_url"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	Nodes       []Node            `yaml:"nodes"`
	SSH         SSHConfig         `yaml:"ssh"`
	IPMI        IPMIConfig        `yaml:"ipmi"`
	Reprovision ReprovisionConfig `yaml:"reprovision"`
	Cluster     ClusterConfig     `yaml:"cluster"`
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ListenAddr:  ":8080",
		StatePath:   "/var/lib/provisioning-server/state.db",
		TemplateDir: "/var/lib/provisioning-server/templates",
		SessionDir:  "/var/lib/provisioning-server/sessions",
		LogLevel:    "info",
		SSH: SSHConfig{
			User: "root",
			Port: 22,
		},
		Reprovision: ReprovisionConfig{
			ResetRetries:    3,
			ResetBackoff:    Duration(2 * time.Second),
			NodeDelay:       Duration(10 * time.Second),
			PollInterval:    Duration(15 * time.Second),
			NodeDeadline:    Duration(30 * time.Minute),
			StuckNodePolicy: "manual",
			ReadyURL:        "https://%s:8006/",
			InnerTimeout:    Duration(5 * time.Second),
			OuterTimeout:    Duration(12 * time.Second),
		},
		Cluster: ClusterConfig{
			InnerTimeout: Duration(2 * time.Minute),
			OuterTimeout: Duration(5 * time.Minute),
		},
	}
}

// Validate checks cross-field consistency: node keys must be well formed
// and unique, and the designated primary must name a configured node.
func (c *Config) Validate() error {
	seen := make(map[string]string, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.Name == "" {
			return fmt.Errorf("node with MAC %q has no name", n.MAC)
		}
		key, err := n.Key()
		if err != nil {
			return fmt.Errorf("node %s: %w", n.Name, err)
		}
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("nodes %s and %s share key %s", prev, n.Name, key)
		}
		seen[key] = n.Name
	}

	if c.Cluster.Primary != "" {
		if _, ok := c.NodeByName(c.Cluster.Primary); !ok {
			return fmt.Errorf("cluster primary %q is not a configured node", c.Cluster.Primary)
		}
	}

	switch c.Reprovision.StuckNodePolicy {
	case "manual", "repoll":
	default:
		return fmt.Errorf("invalid stuck_node_policy %q (want manual or repoll)", c.Reprovision.StuckNodePolicy)
	}

	if c.Reprovision.OuterTimeout.Std() <= c.Reprovision.InnerTimeout.Std() {
		return fmt.Errorf("outer_timeout %s must exceed inner_timeout %s",
			c.Reprovision.OuterTimeout.Std(), c.Reprovision.InnerTimeout.Std())
	}
	if c.Cluster.OuterTimeout.Std() <= c.Cluster.InnerTimeout.Std() {
		return fmt.Errorf("cluster outer_timeout %s must exceed inner_timeout %s",
			c.Cluster.OuterTimeout.Std(), c.Cluster.InnerTimeout.Std())
	}
	return nil
}

// NodeByName returns the configured node with the given name.
func (c *Config) NodeByName(name string) (Node, bool) {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// NodeByKey returns the configured node with the given canonical key.
func (c *Config) NodeByKey(key string) (Node, bool) {
	for _, n := range c.Nodes {
		if k, err := n.Key(); err == nil && k == key {
			return n, true
		}
	}
	return Node{}, false
}

// PrimaryNode returns the designated cluster-creation node.
func (c *Config) PrimaryNode() (Node, error) {
	if c.Cluster.Primary == "" {
		return Node{}, fmt.Errorf("no cluster primary configured")
	}
	n, ok := c.NodeByName(c.Cluster.Primary)
	if !ok {
		return Node{}, fmt.Errorf("cluster primary %q is not a configured node", c.Cluster.Primary)
	}
	return n, nil
}
