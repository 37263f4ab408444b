// Package cli provides the command-line interface for orchestra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	userID    string
	verbose   bool

	// apiClient talks to the orchestra server; created before every command.
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "orchestra",
	Short: "Conversational DevOps assistant",
	Long: `Orchestra is a conversational DevOps assistant: chat about your stack,
point it at a repository to analyze, generate Terraform for AWS in the
background, and validate deployments against the generated config.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		if userID == "" {
			userID = os.Getenv("ORCHESTRA_USER_ID")
		}
		if userID == "" {
			return fmt.Errorf("user id required: set --user or ORCHESTRA_USER_ID")
		}
		apiClient = client.New(serverURL, userID)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default ORCHESTRA_SERVER_URL or http://localhost:8090)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "principal id (default ORCHESTRA_USER_ID)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(statsCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
