package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"previewchat/internal/app"
	"previewchat/internal/config"
	"previewchat/internal/demoserver"
	"previewchat/internal/logging"
)

var demoAddr string

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run against a built-in mock backend",
	Long: `Start a local mock of the preview backend (realtime channel, publish and
task-status endpoints) and run the client against it. Set
PREVIEWCHAT_OPENAI_KEY to have the mock assistant answer through an
OpenAI-compatible API instead of canned text.`,
	Run: func(cmd *cobra.Command, args []string) {
		zlog, err := logging.New()
		if err != nil {
			zlog = logging.Nop()
		}

		var opts []demoserver.Option
		if key := os.Getenv("PREVIEWCHAT_OPENAI_KEY"); key != "" {
			opts = append(opts, demoserver.WithOpenAI(
				key,
				os.Getenv("PREVIEWCHAT_OPENAI_BASE_URL"),
				os.Getenv("PREVIEWCHAT_OPENAI_MODEL"),
			))
		}

		server := demoserver.New(zlog.Named("demoserver"), opts...)
		if err := server.Start(demoAddr); err != nil {
			log.Fatalf("Failed to start demo server: %v", err)
		}
		defer server.Stop()

		cfg := &config.Config{
			Profiles: map[string]config.Profile{
				"demo": {
					WebsocketURL: server.WebsocketURL(),
					PublishURL:   server.PublishURL(),
					SiteURL:      "http://" + server.Addr(),
					ProjectID:    "demo",
				},
			},
			ActiveProfile: "demo",
		}
		if err := cfg.UseProfile("demo"); err != nil {
			log.Fatalf("Failed to build demo config: %v", err)
		}

		application, err := app.NewApplicationWithConfig(cfg, "")
		if err != nil {
			log.Fatalf("Failed to create application: %v", err)
		}
		defer application.Stop()

		if err := application.Start(); err != nil {
			log.Fatalf("Application error: %v", err)
		}
	},
}

func init() {
	demoCmd.Flags().StringVar(&demoAddr, "addr", "127.0.0.1:0", "address for the mock backend")
	rootCmd.AddCommand(demoCmd)
}
