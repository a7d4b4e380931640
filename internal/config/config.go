package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Profile describes one backend the client can talk to.
type Profile struct {
	WebsocketURL string `json:"websocket_url"`
	PublishURL   string `json:"publish_url"`
	SiteURL      string `json:"site_url,omitempty"`
	ProjectID    string `json:"project_id"`
}

type Config struct {
	Profiles      map[string]Profile `json:"profiles"`
	ActiveProfile string             `json:"active_profile"`
	// AutoOpenPreview controls whether the preview pane is shown as soon as a
	// publish completes, without waiting for an explicit refresh.
	AutoOpenPreview bool `json:"auto_open_preview"`
	currentProfile  *Profile
}

func LoadConfig() (*Config, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	if err := ensureConfigDir(configPath); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config, err := loadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.setCurrentProfile(); err != nil {
		return nil, fmt.Errorf("failed to set current profile: %w", err)
	}

	return config, nil
}

func (c *Config) IsValid() bool {
	return c.currentProfile != nil && c.currentProfile.WebsocketURL != ""
}

func (c *Config) GetWebsocketURL() string {
	if c.currentProfile == nil {
		return ""
	}
	return c.currentProfile.WebsocketURL
}

func (c *Config) GetPublishURL() string {
	if c.currentProfile == nil {
		return ""
	}
	return c.currentProfile.PublishURL
}

func (c *Config) GetSiteURL() string {
	if c.currentProfile == nil {
		return ""
	}
	return c.currentProfile.SiteURL
}

func (c *Config) GetProjectID() string {
	if c.currentProfile == nil {
		return ""
	}
	return c.currentProfile.ProjectID
}

// UseProfile switches the active profile in memory. Call Save to persist.
func (c *Config) UseProfile(name string) error {
	if _, exists := c.Profiles[name]; !exists {
		return fmt.Errorf("profile %q does not exist", name)
	}
	c.ActiveProfile = name
	return c.setCurrentProfile()
}

// LogPath returns the log file location inside the config directory. The TUI
// owns the terminal, so logs go to a file.
func LogPath() (string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(configPath), "previewchat.log"), nil
}

func getConfigPath() (string, error) {
	var configDir string

	// Use PREVIEWCHAT_HOME if set, otherwise use user's home directory
	if pcHome := os.Getenv("PREVIEWCHAT_HOME"); pcHome != "" {
		configDir = pcHome
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = homeDir
	}

	return filepath.Join(configDir, ".previewchat", "config.json"), nil
}

func ensureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

func loadConfigFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return createDefaultConfig(configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func createDefaultConfig(configPath string) (*Config, error) {
	config := &Config{
		Profiles: map[string]Profile{
			"default": {
				WebsocketURL: "",
				PublishURL:   "",
				SiteURL:      "",
				ProjectID:    "",
			},
		},
		ActiveProfile:   "default",
		AutoOpenPreview: true,
	}

	if err := saveConfig(config, configPath); err != nil {
		return nil, err
	}

	return config, nil
}

func saveConfig(config *Config, configPath string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

func (c *Config) Save() error {
	configPath, err := getConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	return saveConfig(c, configPath)
}

func (c *Config) setCurrentProfile() error {
	if c.Profiles == nil {
		return fmt.Errorf("no profiles defined")
	}

	profile, exists := c.Profiles[c.ActiveProfile]
	if !exists {
		for name, p := range c.Profiles {
			c.ActiveProfile = name
			profile = p
			exists = true
			break
		}
	}

	if !exists {
		return fmt.Errorf("no valid profiles found")
	}

	c.currentProfile = &profile
	return nil
}

// StatusBasePath derives the task-status base from the publish endpoint by
// trimming the trailing action segment.
func StatusBasePath(publishURL string) string {
	return strings.TrimSuffix(publishURL, "/update-page")
}
