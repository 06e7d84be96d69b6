package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [remote-path]",
	Short: "List a remote folder",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLs,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <local-file> <remote-path>",
	Short: "Upload a local file",
	Long:  "Upload a local file. A remote path ending in / keeps the local file name.",
	Args:  cobra.ExactArgs(2),
	RunE:  runUpload,
}

var downloadCmd = &cobra.Command{
	Use:   "download <remote-file> [local-path]",
	Short: "Download a remote file",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runDownload,
}

var rmCmd = &cobra.Command{
	Use:   "rm <remote-path>",
	Short: "Delete a remote file or folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var mvCmd = &cobra.Command{
	Use:   "mv <source> <destination>",
	Short: "Move or rename a remote file or folder",
	Args:  cobra.ExactArgs(2),
	RunE:  runMv,
}

var cpCmd = &cobra.Command{
	Use:   "cp <source> <destination>",
	Short: "Copy a remote file or folder",
	Args:  cobra.ExactArgs(2),
	RunE:  runCp,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search files and folders by name or content",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var (
	uploadNoOverwrite bool
	searchFolder      string
)

func init() {
	uploadCmd.Flags().BoolVar(&uploadNoOverwrite, "no-overwrite", false, "Fail instead of replacing an existing remote file")
	searchCmd.Flags().StringVar(&searchFolder, "folder", "", "Restrict the search to a remote folder")

	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(cpCmd)
	rootCmd.AddCommand(searchCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, _, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	remotePath := "/"
	if len(args) == 1 {
		remotePath = args[0]
	}

	items, err := client.ListFolder(cmd.Context(), remotePath)
	if err != nil {
		return err
	}
	return out.WriteSuccess("ls", items)
}

func runUpload(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, _, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	localPath, remotePath := args[0], args[1]
	info, err := client.UploadFile(cmd.Context(), localPath, remotePath, !uploadNoOverwrite, true)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return out.WriteSuccess("upload", info)
}

func runDownload(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, _, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	remotePath := args[0]
	localPath := filepath.Base(strings.TrimRight(remotePath, "/"))
	if len(args) == 2 {
		localPath = args[1]
	}

	content, err := client.DownloadFile(cmd.Context(), remotePath, localPath)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	return out.WriteSuccess("download", map[string]interface{}{
		"remote": remotePath,
		"local":  localPath,
		"size":   len(content),
	})
}

func runRm(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, _, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	if err := client.DeleteFile(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return out.WriteSuccess("rm", map[string]string{"deleted": args[0]})
}

func runMv(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, _, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	if err := client.MoveFile(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("move failed: %w", err)
	}
	return out.WriteSuccess("mv", map[string]string{"from": args[0], "to": args[1]})
}

func runCp(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, _, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	if err := client.CopyFile(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("copy failed: %w", err)
	}
	return out.WriteSuccess("cp", map[string]string{"from": args[0], "to": args[1]})
}

func runSearch(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, _, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	results, err := client.Search(cmd.Context(), args[0], searchFolder)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return out.WriteSuccess("search", results)
}
