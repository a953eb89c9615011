package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/ideamark/internal/logging"
	"github.com/conneroisu/ideamark/internal/services"
)

var publishCmd = &cobra.Command{
	Use:     "publish",
	Aliases: []string{"p"},
	Short:   "Push changed files to the remote server",
	Long: `Ingest the local content directories, fetch the checksum table of the
remote server and upload every file whose checksum differs.

Examples:
  ideamark publish                                  # Publish to the configured remote
  ideamark publish --remote https://notes.example   # Override the remote
  ideamark publish --prune                          # Also delete remote-only files`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().String("remote", "", "Base URL of the remote server")
	publishCmd.Flags().Bool("prune", false, "Delete remote files missing locally")

	_ = viper.BindPFlag("remote", publishCmd.Flags().Lookup("remote"))
}

func runPublish(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	prune, _ := cmd.Flags().GetBool("prune")

	// Publish mode always logs to the console.
	cfg := loggerConfig()
	cfg.Output = cmd.ErrOrStderr()
	logger := logging.NewLogger(cfg)

	service := services.NewPublishService(services.NewSite(settings, logger), logger)
	report, err := service.Publish(cmd.Context(), services.PublishOptions{Prune: prune})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, rel := range report.Uploaded {
		fmt.Fprintf(out, "uploaded %s\n", rel)
	}
	for _, rel := range report.Deleted {
		fmt.Fprintf(out, "deleted  %s\n", rel)
	}
	fmt.Fprintf(out, "%d uploaded, %d deleted, %d unchanged\n",
		len(report.Uploaded), len(report.Deleted), report.Unchanged)
	return nil
}
