package cli

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/secho/egnyte-client-linux/internal/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage authentication with the Egnyte API",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with Egnyte",
	Long:  "Initiate the OAuth2 authorization-code flow to obtain tokens",
	RunE:  runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE:  runAuthStatus,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored tokens",
	RunE:  runAuthLogout,
}

var (
	authNoBrowser bool
	authCode      string
)

func init() {
	authLoginCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	authLoginCmd.Flags().StringVar(&authCode, "code", "", "Authorization code (skips the local callback server)")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manager := auth.NewManager(cfg, logger)

	// Manual code path for headless machines
	if authCode != "" {
		if err := manager.Exchange(cmd.Context(), authCode); err != nil {
			return err
		}
		return out.WriteSuccess("auth.login", map[string]string{
			"status":  "authenticated",
			"storage": manager.StorageName(),
		})
	}

	authURL, err := manager.AuthorizationURL()
	if err != nil {
		return err
	}

	out.Log("Open this URL to authorize the client:")
	out.Log("  %s", authURL)
	if !authNoBrowser {
		openBrowser(authURL)
	}
	out.Log("Waiting for the browser redirect...")

	code, err := manager.WaitForCallback(cmd.Context())
	if err != nil {
		return fmt.Errorf("authorization failed: %w (re-run with --code to paste the code manually)", err)
	}
	if err := manager.Exchange(cmd.Context(), code); err != nil {
		return err
	}

	return out.WriteSuccess("auth.login", map[string]string{
		"status":  "authenticated",
		"domain":  cfg.Domain(),
		"storage": manager.StorageName(),
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manager := auth.NewManager(cfg, logger)

	status := map[string]interface{}{
		"authenticated": manager.IsAuthenticated(),
		"domain":        cfg.Domain(),
		"storage":       manager.StorageName(),
	}
	return out.WriteSuccess("auth.status", status)
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manager := auth.NewManager(cfg, logger)
	if err := manager.Logout(); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return out.WriteSuccess("auth.logout", map[string]string{"status": "logged out"})
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
