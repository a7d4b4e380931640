package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"previewchat/internal/app"
)

var previewIDFlag string

var rootCmd = &cobra.Command{
	Use:   "previewchat",
	Short: "Chat with the preview assistant and publish changes to your site",
	Long: `previewchat is a terminal client for the preview/chat backend: converse
with the assistant over the realtime channel, watch streamed progress, and
drive the publish workflow to completion.`,
	Run: func(cmd *cobra.Command, args []string) {
		application, err := app.NewApplication(previewIDFlag)
		if err != nil {
			log.Fatalf("Failed to create application: %v", err)
		}
		defer application.Stop()

		if err := application.Start(); err != nil {
			log.Fatalf("Application error: %v", err)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution error: %v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&previewIDFlag, "preview-id", "", "resume an existing preview session")
	rootCmd.AddCommand(profileCmd)
}
