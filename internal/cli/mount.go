package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/secho/egnyte-client-linux/internal/vfs"
	"github.com/secho/egnyte-client-linux/internal/vfs/fusefs"
)

var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint>",
	Short: "Mount the remote filesystem via FUSE",
	Long: `Mount an Egnyte folder as a local filesystem. The process stays in
the foreground until interrupted; Ctrl-C unmounts cleanly.`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

var (
	mountRemoteRoot string
	mountDebug      bool
)

func init() {
	mountCmd.Flags().StringVar(&mountRemoteRoot, "remote", "/", "Remote folder to mount")
	mountCmd.Flags().BoolVar(&mountDebug, "fuse-debug", false, "Log raw FUSE operations")

	rootCmd.AddCommand(mountCmd)
}

func runMount(cmd *cobra.Command, args []string) error {
	mountpoint := args[0]
	if info, err := os.Stat(mountpoint); err != nil || !info.IsDir() {
		return fmt.Errorf("mountpoint %s is not an existing directory", mountpoint)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, manager, err := newAPIClient(cfg)
	if err != nil {
		return err
	}
	if !manager.IsAuthenticated() {
		return fmt.Errorf("not authenticated, run 'egnyte auth login' first")
	}

	core := vfs.NewCore(client, mountRemoteRoot, logger)
	server, err := fusefs.Mount(mountpoint, core, mountDebug, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newOutput().Log("Mounted %s at %s (Ctrl-C to unmount)", mountRemoteRoot, mountpoint)
	return server.Serve(ctx)
}
