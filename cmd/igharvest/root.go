package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"igharvest/pkg/config"
	"igharvest/pkg/logger"
	"igharvest/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igharvest",
	Short: "Paced Instagram profile and post harvester",
	Long: `igharvest logs into Instagram with a real browser, turns the resulting
cookies into a reusable session and scrapes profiles and post metadata
for a list of accounts.

Every remote call is paced with randomised delays. Failed calls are
retried after a cooldown, security checkpoints stop the run at once, and
long batches pause regularly.

The three steps can be run one by one:
  igharvest login <username> [password]
  igharvest convert <username> [cookie-file] [session-file]
  igharvest scrape <session-file> <target>...

or in sequence with 'igharvest run [username]'.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.SetQuietMode(true)
		}
		if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Parent() == cmd.Root() {
			ui.PrintLogo()
		}
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError("Error", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default .igharvest.yaml or ~/.config/igharvest/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logs and every pacing delay")

	rootCmd.SetVersionTemplate(`igharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// changedFlags collects the flags set on the command line, keyed by name,
// in the shape config.MergeCommandLineFlags expects.
func changedFlags(flags *pflag.FlagSet) map[string]interface{} {
	out := make(map[string]interface{})
	flags.Visit(func(f *pflag.Flag) {
		switch f.Value.Type() {
		case "bool":
			if v, err := flags.GetBool(f.Name); err == nil {
				out[f.Name] = v
			}
		case "int":
			if v, err := flags.GetInt(f.Name); err == nil {
				out[f.Name] = v
			}
		default:
			out[f.Name] = f.Value.String()
		}
	})
	return out
}

// runtimeEnv is what every step command needs.
type runtimeEnv struct {
	cfg *config.Config
	log logger.Logger
}

// setup loads the configuration for cmd and builds the logger. While the
// dashboard owns the terminal the logger only writes to the log file.
func setup(cmd *cobra.Command) (*runtimeEnv, error) {
	flags := changedFlags(cmd.Flags())
	switch {
	case quiet:
		flags["log-level"] = "error"
	case verbose:
		flags["log-level"] = "debug"
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	logger.Version = version
	var out io.Writer = os.Stderr
	if cfg.TUI.Enabled && cmd.Flags().Lookup("tui") != nil {
		out = io.Discard
	}
	log, err := logger.NewWithWriter(&cfg.Logging, out)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetLogger(log)
	return &runtimeEnv{cfg: cfg, log: log}, nil
}
