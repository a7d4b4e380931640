package cmd

import (
	"fmt"
	"log"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"previewchat/internal/config"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage endpoint profiles",
	Long:  `Manage endpoint profiles for different preview backends.`,
}

var listProfilesCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		fmt.Printf("Active Profile: %s\n\n", cfg.ActiveProfile)
		fmt.Println("Available Profiles:")
		for name, profile := range cfg.Profiles {
			marker := ""
			if name == cfg.ActiveProfile {
				marker = " (active)"
			}
			fmt.Printf("  %s%s\n", name, marker)
			fmt.Printf("    WebSocket URL: %s\n", orUnset(profile.WebsocketURL))
			fmt.Printf("    Publish URL: %s\n", orUnset(profile.PublishURL))
			if profile.SiteURL != "" {
				fmt.Printf("    Site URL: %s\n", profile.SiteURL)
			}
			fmt.Printf("    Project ID: %s\n", orUnset(profile.ProjectID))
			fmt.Println()
		}
	},
}

var showProfileCmd = &cobra.Command{
	Use:   "show [profile-name]",
	Short: "Show profile details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		profileName := args[0]
		profile, exists := cfg.Profiles[profileName]
		if !exists {
			log.Fatalf("Profile '%s' does not exist", profileName)
		}

		fmt.Printf("Profile: %s\n", profileName)
		fmt.Printf("WebSocket URL: %s\n", profile.WebsocketURL)
		fmt.Printf("Publish URL: %s\n", profile.PublishURL)
		fmt.Printf("Site URL: %s\n", profile.SiteURL)
		fmt.Printf("Project ID: %s\n", profile.ProjectID)
	},
}

var addProfileCmd = &cobra.Command{
	Use:   "add [profile-name]",
	Short: "Add a new profile",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		var profileName string
		if len(args) == 1 {
			profileName = args[0]
		} else {
			namePrompt := promptui.Prompt{Label: "Profile name"}
			profileName, err = namePrompt.Run()
			if err != nil {
				log.Fatalf("Cancelled: %v", err)
			}
		}

		if _, exists := cfg.Profiles[profileName]; exists {
			log.Fatalf("Profile '%s' already exists", profileName)
		}

		wsPrompt := promptui.Prompt{Label: "WebSocket URL (wss://...)"}
		wsURL, err := wsPrompt.Run()
		if err != nil {
			log.Fatalf("Cancelled: %v", err)
		}

		publishPrompt := promptui.Prompt{Label: "Publish URL (https://.../update-page)"}
		publishURL, err := publishPrompt.Run()
		if err != nil {
			log.Fatalf("Cancelled: %v", err)
		}

		sitePrompt := promptui.Prompt{Label: "Site URL (optional)"}
		siteURL, err := sitePrompt.Run()
		if err != nil {
			log.Fatalf("Cancelled: %v", err)
		}

		projectPrompt := promptui.Prompt{Label: "Project ID"}
		projectID, err := projectPrompt.Run()
		if err != nil {
			log.Fatalf("Cancelled: %v", err)
		}

		cfg.Profiles[profileName] = config.Profile{
			WebsocketURL: wsURL,
			PublishURL:   publishURL,
			SiteURL:      siteURL,
			ProjectID:    projectID,
		}

		if err := cfg.Save(); err != nil {
			log.Fatalf("Failed to save config: %v", err)
		}
		fmt.Printf("Profile '%s' added.\n", profileName)
	},
}

var removeProfileCmd = &cobra.Command{
	Use:   "remove [profile-name]",
	Short: "Remove a profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		profileName := args[0]
		if _, exists := cfg.Profiles[profileName]; !exists {
			log.Fatalf("Profile '%s' does not exist", profileName)
		}
		if profileName == cfg.ActiveProfile {
			log.Fatalf("Cannot remove the active profile")
		}

		delete(cfg.Profiles, profileName)
		if err := cfg.Save(); err != nil {
			log.Fatalf("Failed to save config: %v", err)
		}
		fmt.Printf("Profile '%s' removed.\n", profileName)
	},
}

func orUnset(value string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}

func init() {
	profileCmd.AddCommand(listProfilesCmd)
	profileCmd.AddCommand(showProfileCmd)
	profileCmd.AddCommand(addProfileCmd)
	profileCmd.AddCommand(removeProfileCmd)
}
