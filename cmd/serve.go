package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/ideamark/internal/logging"
	"github.com/conneroisu/ideamark/internal/services"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Ingest the content directories and serve the site",
	Long: `Ingest every configured content directory and serve the site over HTTP.

With watch_files enabled, modified posts are re-ingested while serving.

Examples:
  ideamark serve                       # Serve on the configured address
  ideamark serve --port 3000           # Override the port
  ideamark serve --watch --live-reload # Re-ingest edits and refresh browsers`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().BoolP("watch", "w", false, "Re-ingest posts when they change")
	serveCmd.Flags().Bool("live-reload", false, "Refresh open browsers when content changes")

	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("watch_files", serveCmd.Flags().Lookup("watch"))
	_ = viper.BindPFlag("live_reload", serveCmd.Flags().Lookup("live-reload"))
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	// Serve mode logs to the error log when one is configured.
	var logger logging.Logger
	if settings.ErrorLog != "" {
		fileLogger, err := logging.NewFileLogger(loggerConfig(), settings.ResolvePath(settings.ErrorLog))
		if err != nil {
			return err
		}
		defer fileLogger.Close()
		logger = fileLogger
		fmt.Fprintln(cmd.OutOrStdout(), "Logging to", fileLogger.Path())
	} else {
		logger = logging.NewLogger(loggerConfig())
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Updating local files cache ...")

	service := services.NewServeService(services.NewSite(settings, logger), logger)
	_, err = service.Serve(cmd.Context(), services.ServeOptions{
		Ready: func(result *services.ServeResult) {
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %d posts on %s\n", result.Ingested.Posts, result.ServerURL)
		},
	})
	return err
}
