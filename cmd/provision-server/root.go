package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sddcinfo/provisioning-server/pkg/cluster"
	"github.com/sddcinfo/provisioning-server/pkg/config"
	"github.com/sddcinfo/provisioning-server/pkg/log"
	"github.com/sddcinfo/provisioning-server/pkg/probe"
	"github.com/sddcinfo/provisioning-server/pkg/remote"
	"github.com/sddcinfo/provisioning-server/pkg/reprovision"
	"github.com/sddcinfo/provisioning-server/pkg/store"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "provision-server",
	Short: "Bare-metal fleet provisioning and cluster formation",
	Long: `provision-server drives a small bare-metal fleet through its install
lifecycle: it answers iPXE boot requests with install or local-disk
scripts, tracks per-node install state, reprovisions nodes over SSH and
IPMI, and forms the cluster once every node has reinstalled.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"provision-server version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		"/etc/provisioning-server/config.yaml", "path to configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reprovisionCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(nodeCmd)
}

// loadConfig reads the configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	return cfg, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	return store.NewBoltStore(cfg.StatePath)
}

// sshFactory builds per-node in-band executors.
func sshFactory(cfg *config.Config) reprovision.ExecutorFactory {
	return func(n config.Node) (remote.Executor, error) {
		return remote.NewSSHExecutorFromFile(n.ManagementIP, cfg.SSH.Port, cfg.SSH.User, cfg.SSH.PrivateKeyPath)
	}
}

// ipmiFactory builds per-node out-of-band executors.
func ipmiFactory(cfg *config.Config) reprovision.ExecutorFactory {
	return func(n config.Node) (remote.Executor, error) {
		if n.BMCAddr == "" {
			return nil, fmt.Errorf("node %s has no BMC address configured", n.Name)
		}
		return remote.NewIPMIExecutor(n.BMCAddr, cfg.IPMI.User, cfg.IPMI.Password), nil
	}
}

// clusterFactory builds address-keyed SSH executors for formation, which
// may go over either corosync link.
func clusterFactory(cfg *config.Config) cluster.ExecutorFactory {
	return func(addr string) (remote.Executor, error) {
		return remote.NewSSHExecutorFromFile(addr, cfg.SSH.Port, cfg.SSH.User, cfg.SSH.PrivateKeyPath)
	}
}

// tcpProbe is the cheap liveness check against the node's SSH port.
func tcpProbe(cfg *config.Config) reprovision.ProbeFunc {
	return func(ctx context.Context, n config.Node) bool {
		addr := net.JoinHostPort(n.ManagementIP, strconv.Itoa(cfg.SSH.Port))
		return probe.NewTCPProber(addr).Probe(ctx).Reachable
	}
}

// readyProbe checks the node's management web service. Freshly installed
// nodes serve a self-signed certificate, so verification is off; this is
// a liveness signal, not an authenticated channel.
func readyProbe(cfg *config.Config) func(ctx context.Context, n config.Node) bool {
	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return func(ctx context.Context, n config.Node) bool {
		p := probe.NewHTTPProber(fmt.Sprintf(cfg.Reprovision.ReadyURL, n.ManagementIP))
		p.Client = client
		return p.Probe(ctx).Reachable
	}
}

// newCoordinator wires the default strategy stacks.
func newCoordinator(cfg *config.Config, s store.Store) *reprovision.Coordinator {
	sshF := sshFactory(cfg)
	ipmiF := ipmiFactory(cfg)
	return reprovision.NewCoordinator(
		s,
		tcpProbe(cfg),
		reprovision.DefaultBootDeviceStrategies(cfg, sshF, ipmiF),
		reprovision.DefaultRebootStrategies(cfg, sshF, ipmiF),
		cfg.Reprovision,
	)
}
