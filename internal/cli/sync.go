package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/secho/egnyte-client-linux/internal/config"
	"github.com/secho/egnyte-client-linux/internal/sync"
	"github.com/secho/egnyte-client-linux/internal/sync/state"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Manage and run folder synchronization",
}

var syncAddCmd = &cobra.Command{
	Use:   "add <local-path> <remote-path>",
	Short: "Register a folder pair for synchronization",
	Args:  cobra.ExactArgs(2),
	RunE:  runSyncAdd,
}

var syncRemoveCmd = &cobra.Command{
	Use:   "remove <local-path>",
	Short: "Unregister a sync pair by its local path",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncRemove,
}

var syncListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sync pairs",
	RunE:  runSyncList,
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Run a full sync of every configured pair",
	RunE:  runSyncNow,
}

var (
	syncConflictFlag     string
	syncDeleteLocalFlag  bool
	syncDeleteRemoteFlag bool
)

func init() {
	syncAddCmd.Flags().StringVar(&syncConflictFlag, "conflict", "", "Conflict policy for this pair (newest, local, remote)")
	syncAddCmd.Flags().BoolVar(&syncDeleteLocalFlag, "delete-local", false, "Delete local files when they disappear remotely")
	syncAddCmd.Flags().BoolVar(&syncDeleteRemoteFlag, "delete-remote", false, "Delete remote files when they disappear locally")

	syncCmd.AddCommand(syncAddCmd)
	syncCmd.AddCommand(syncRemoveCmd)
	syncCmd.AddCommand(syncListCmd)
	syncCmd.AddCommand(syncNowCmd)
	rootCmd.AddCommand(syncCmd)
}

// newSyncEngine builds the sync engine over an existing API client so
// the engine shares the client's rate limiter
func newSyncEngine(cfg *config.Config, client sync.RemoteClient) (*sync.Engine, error) {
	store, err := state.Open(cfg.Dir())
	if err != nil {
		return nil, fmt.Errorf("opening sync state: %w", err)
	}
	return sync.NewEngine(client, cfg, store, logger), nil
}

func runSyncAdd(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	localRoot, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	remoteRoot := args[1]
	if !strings.HasPrefix(remoteRoot, "/") {
		return fmt.Errorf("remote path must be absolute, like /Shared/Documents")
	}

	policy := config.SyncPolicy{}
	if syncConflictFlag != "" {
		p := config.ConflictPolicy(syncConflictFlag)
		if !p.Valid() {
			return fmt.Errorf("invalid conflict policy %q (newest, local, remote)", syncConflictFlag)
		}
		policy.ConflictPolicy = p
	}
	if cmd.Flags().Changed("delete-local") {
		policy.DeleteLocalOnRemoteMissing = &syncDeleteLocalFlag
	}
	if cmd.Flags().Changed("delete-remote") {
		policy.DeleteRemoteOnLocalMissing = &syncDeleteRemoteFlag
	}

	cfg.AddSyncPath(localRoot, remoteRoot, policy)
	if err := cfg.Save(); err != nil {
		return err
	}
	return out.WriteSuccess("sync.add", map[string]string{
		"local":  localRoot,
		"remote": remoteRoot,
	})
}

func runSyncRemove(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	localRoot, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if !cfg.RemoveSyncPath(localRoot) {
		return fmt.Errorf("no sync path registered for %s", localRoot)
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	return out.WriteSuccess("sync.remove", map[string]string{"local": localRoot})
}

func runSyncList(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return out.WriteSuccess("sync.list", cfg.SyncEntries())
}

func runSyncNow(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.SyncEntries()) == 0 {
		return fmt.Errorf("no sync paths configured, run 'egnyte sync add' first")
	}

	client, _, err := newAPIClient(cfg)
	if err != nil {
		return err
	}
	engine, err := newSyncEngine(cfg, client)
	if err != nil {
		return err
	}

	results := engine.SyncAll(cmd.Context())

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	if failed > 0 {
		out.AddWarning("SYNC_PARTIAL", fmt.Sprintf("%d of %d operations failed", failed, len(results)), "warning")
	}
	return out.WriteSuccess("sync.now", results)
}
