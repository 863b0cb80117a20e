package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igharvest/pkg/config"
	"igharvest/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igharvest configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (IGHARVEST_*, .env included)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is written to ~/.config/igharvest/config.yaml unless a different
path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from every source and check it.

Besides the value checks done on every load, this makes sure the output
and log directories can be created.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# igharvest configuration
#
# Every value can also be set with an IGHARVEST_* environment variable,
# for example IGHARVEST_USERNAME, IGHARVEST_TARGETS or IGHARVEST_COOLDOWN.

instagram:
  base_url: "https://www.instagram.com"
  # Leave empty for the built-in desktop Chrome user agent
  user_agent: ""
  timeout: 30s
  # Posts per timeline page (1-50)
  page_size: 12

browser:
  headless: true
  login_url: "https://www.instagram.com/accounts/login/"
  timeout: 60s
  # Wait after the login page loads
  settle_delay: 2s
  # Wait after the network goes idle once the form is submitted
  submit_delay: 5s
  locale: "en-US"

pacing:
  # Random delay before every request without its own range
  default:
    min: 8s
    max: 15s
  # Per request kind: login, profile, post_page, post_detail, account
  ranges:
    post_detail:
      min: 3s
      max: 5s
    account:
      min: 15s
      max: 30s
    login:
      min: 0s
      max: 0s
  # Minimum gap between two requests of the same kind
  floor: 3s
  # Wait after every failed attempt
  cooldown: 60s
  # Wait after a failed item in a batch
  item_cooldown: 30s
  progress_every: 25
  pause_every: 100
  pause_duration: 60s
  login_attempts: 3
  fetch_attempts: 3
  # Double the cooldown after consecutive failures, up to max_cooldown
  adaptive: false
  max_cooldown: 10m

session:
  username: ""
  cookie_file: "playwright_ig_cookies.json"
  # Defaults to session-<username>
  session_file: ""

scrape:
  targets: []
  # 0 scrapes every post
  max_posts: 0
  # Probe the first target with this many posts before the full run
  # (0 skips the probe)
  probe_posts: 50
  resume: false
  fetch_details: false

output:
  base_directory: "./scraped_data"
  probe_directory: "probe"
  write_json: true
  write_csv: true

notifications:
  enabled: false
  on_complete: true
  on_error: true
  # terminal, desktop or none
  notification_type: "terminal"

logging:
  # debug, info, warn, error
  level: "info"
  # Leave empty to log to the terminal only
  file: ""
  max_size: 100
  max_backups: 3
  max_age: 7
  compress: false

tui:
  enabled: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Set session.username and scrape.targets")
	fmt.Println("2. Store the password with 'igharvest accounts add <username>'")
	fmt.Println("3. Start with 'igharvest run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}
	if err := checkPaths(cfg); err != nil {
		return err
	}

	var warnings []string
	if cfg.Session.Username == "" {
		warnings = append(warnings, "session.username is not set; 'run' needs a username argument")
	}
	if len(cfg.Scrape.Targets) == 0 {
		warnings = append(warnings, "scrape.targets is empty; 'run' needs --targets")
	}
	for _, w := range warnings {
		ui.PrintWarning(w)
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Default delay: %s-%s\n", cfg.Pacing.Default.Min, cfg.Pacing.Default.Max)
	fmt.Printf("  Cooldown: %s (item %s)\n", cfg.Pacing.Cooldown, cfg.Pacing.ItemCooldown)
	fmt.Printf("  Pause: %s every %d items\n", cfg.Pacing.PauseDuration, cfg.Pacing.PauseEvery)
	fmt.Printf("  Attempts: login %d, fetch %d\n", cfg.Pacing.LoginAttempts, cfg.Pacing.FetchAttempts)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}

// checkPaths makes sure the directories the run writes to can be created.
func checkPaths(cfg *config.Config) error {
	var errs []error
	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		errs = append(errs, fmt.Errorf("cannot create output directory: %w", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			errs = append(errs, fmt.Errorf("cannot create log directory: %w", err))
		}
	}
	return errors.Join(errs...)
}
