package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/secho/egnyte-client-linux/internal/auth"
	"github.com/secho/egnyte-client-linux/internal/service"
	"github.com/secho/egnyte-client-linux/internal/watcher"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Background sync service",
}

var serviceRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync service in the foreground",
	Long: `Run the background sync service: watches configured local folders
and polls the remote side, syncing whenever either changes. Intended
to be managed by systemd; stays in the foreground until interrupted.`,
	RunE: runServiceRun,
}

func init() {
	serviceCmd.AddCommand(serviceRunCmd)
	rootCmd.AddCommand(serviceCmd)
}

func runServiceRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, _, err := newAPIClient(cfg)
	if err != nil {
		return err
	}
	engine, err := newSyncEngine(cfg, client)
	if err != nil {
		return err
	}

	svc := service.New(cfg, engine, client,
		auth.NewManager(cfg, logger), watcher.New(cfg, logger), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return svc.Run(ctx)
}
