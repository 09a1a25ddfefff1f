// Package main is the entry point for the wabot CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wabot/pkg/config"
	"wabot/pkg/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "wabot",
	Short: "wabot - a WhatsApp group assistant bot",
	Long: `wabot connects to a WhatsApp bridge and runs a command pipeline:
moderation policies, a command registry, and a policy gate in front of
every dispatch.

Examples:
  # Run in foreground
  wabot run

  # Install as a system service (requires sudo/admin privileges)
  sudo wabot service install

  # Control the installed service
  sudo wabot service start
  sudo wabot service stop
  wabot service status`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot",
	Long: `Run the bot. In a terminal this runs in the foreground; when invoked
by a service manager it hands control to the service runner.`,
	Run: runBot,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetFullVersion())
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the bot as a system service",
	Long: `Manage the bot through the system service manager:
- Linux: systemd
- macOS: launchd
- Windows: Windows Service Manager

Install, start, stop, restart, and uninstall require administrator
privileges.`,
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the bot as a system service",
	Run: func(cmd *cobra.Command, args []string) {
		serviceAction("installing", InstallService)
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the bot service",
	Run: func(cmd *cobra.Command, args []string) {
		serviceAction("uninstalling", UninstallService)
	},
}

var serviceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bot service",
	Run: func(cmd *cobra.Command, args []string) {
		serviceAction("starting", StartService)
	},
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the bot service",
	Run: func(cmd *cobra.Command, args []string) {
		serviceAction("stopping", StopService)
	},
}

var serviceRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the bot service",
	Run: func(cmd *cobra.Command, args []string) {
		serviceAction("restarting", RestartService)
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the bot service status",
	Run: func(cmd *cobra.Command, args []string) {
		if err := StatusService(); err != nil {
			fmt.Fprintf(os.Stderr, "Error checking service status: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStartCmd)
	serviceCmd.AddCommand(serviceStopCmd)
	serviceCmd.AddCommand(serviceRestartCmd)
	serviceCmd.AddCommand(serviceStatusCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(versionCmd)
}

// applyConfigFlag makes the --config flag visible to the config loader,
// which reads the path from the environment.
func applyConfigFlag() {
	if configPath != "" {
		os.Setenv(config.ConfigPathEnv, configPath)
	}
}

func runBot(cmd *cobra.Command, args []string) {
	applyConfigFlag()

	// Service managers set these when they spawn us.
	isService := os.Getenv("INVOCATION_ID") != "" || // systemd
		os.Getenv("SERVICE_NAME") != "" // Windows service

	if isService {
		if err := RunService(); err != nil {
			fmt.Fprintf(os.Stderr, "Error running service: %v\n", err)
			os.Exit(1)
		}
		return
	}

	runForeground()
}

func serviceAction(verb string, fn func() error) {
	applyConfigFlag()
	if err := fn(); err != nil {
		fmt.Fprintf(os.Stderr, "Error %s service: %v\n", verb, err)
		fmt.Fprintln(os.Stderr, "\nNote: managing system services requires administrator privileges.")
		fmt.Fprintln(os.Stderr, "Please run with sudo (Linux/macOS) or as Administrator (Windows).")
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
