// Package commands implements the droidprobe CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droidprobe/droidprobe/internal/logger"
	"github.com/droidprobe/droidprobe/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "droidprobe",
	Short: "droidprobe - JDWP debugger for Android VMs",
	Long: `droidprobe attaches to a remote Java/Dalvik virtual machine over the
Java Debug Wire Protocol, installs breakpoints by class and method
name, and single-steps through bytecode from an interactive shell.

Use "droidprobe [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintErr("Error: %v", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/droidprobe/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(debugCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads configuration and initializes the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, nil
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}
