package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"forgetest/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeVerificationFailed indicates the run completed but at least one
	// verification did not match.
	ExitCodeVerificationFailed = 2
)

var debugFlag bool

// rootCmd represents the base command for the forgetest application.
var rootCmd = &cobra.Command{
	Use:   "forgetest",
	Short: "Drive mockforge mock servers from declarative scenarios",
	Long: `forgetest launches mockforge mock servers for integration testing:
it starts the server, waits for it to become healthy, registers response
stubs, and verifies which requests were actually made.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if debugFlag {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "forgetest version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

func getExitCode(err error) int {
	if _, ok := err.(*verificationFailedError); ok {
		return ExitCodeVerificationFailed
	}
	return ExitCodeError
}
