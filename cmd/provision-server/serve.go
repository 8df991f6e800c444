package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sddcinfo/provisioning-server/pkg/api"
	"github.com/sddcinfo/provisioning-server/pkg/boot"
	"github.com/sddcinfo/provisioning-server/pkg/config"
	"github.com/sddcinfo/provisioning-server/pkg/log"
	"github.com/sddcinfo/provisioning-server/pkg/metrics"
	"github.com/sddcinfo/provisioning-server/pkg/store"
	"github.com/sddcinfo/provisioning-server/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the provisioning HTTP server",
	Long: `Start the HTTP server that answers iPXE boot requests, records
install callbacks and serves the operator status page. Runs until
SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := seedFleet(cfg, s); err != nil {
			return err
		}

		preparer := boot.NewSessionPreparer(cfg.TemplateDir, cfg.SessionDir)
		engine := boot.NewEngine(s, preparer, boot.ScriptConfig{
			KernelURL:      cfg.KernelURL,
			InitrdURL:      cfg.InitrdURL,
			SessionBaseURL: cfg.SessionBaseURL,
		})

		collector := metrics.NewCollector(s)
		collector.Start()
		defer collector.Stop()

		server := api.NewServer(cfg, s, engine)
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logger := log.WithComponent("serve")
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return <-errCh
	},
}

// seedFleet registers configured nodes in the store so the status page
// and the monitor see the whole fleet before the first boot request.
// Only descriptive fields are written; existing lifecycle state is kept.
func seedFleet(cfg *config.Config, s store.Store) error {
	for _, n := range cfg.Nodes {
		key, err := n.Key()
		if err != nil {
			return err
		}
		node := n
		if _, err := s.UpdateNode(key, func(r *types.NodeRecord) error {
			r.Hostname = node.Name
			r.ManagementIP = node.ManagementIP
			r.SecondaryIP = node.SecondaryIP
			return nil
		}); err != nil {
			return fmt.Errorf("failed to register node %s: %w", n.Name, err)
		}
	}
	return nil
}
