package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envCmd = &cobra.Command{
	Use:   "upload-env <file>",
	Short: "Upload a .env file used as context during config generation",
	Long: `Upload an environment file whose values are fed into infrastructure
config generation, so generated Terraform references your real settings.

Example:
  orchestra upload-env ./deploy/.env`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read env file: %w", err)
		}
		if err := apiClient.UploadEnv(context.Background(), content); err != nil {
			return fmt.Errorf("upload env: %w", err)
		}
		fmt.Printf("Uploaded %s (%d bytes)\n", args[0], len(content))
		return nil
	},
}
