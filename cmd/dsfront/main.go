// Command dsfront serves the DSpace change submitter pages and ships the
// tooling around them: a mock REST backend and one-shot submitter changes.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dspace-go/dsfront/internal/config"
	"github.com/dspace-go/dsfront/internal/logging"
)

var (
	// Global flags
	configPath string
	logLevel   string
	timeout    time.Duration

	logger *logging.ZapLogger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dsfront",
	Short: "DSpace front end: change submitter pages over a DSpace REST backend",
	Long: `dsfront renders the DSpace share link pages server side.

A user holding a share link can look at the workspace item behind it and make
themselves its submitter. The REST backend is addressed through its HAL root;
responses may be cached in SQLite between runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		if level == "" {
			level = os.Getenv("DSFRONT_LOG_LEVEL")
		}
		if level == "" {
			level = "info"
		}
		if _, err := logging.ParseLevel(level); err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		logger = logging.NewStdoutLogger("dsfront", level)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "Path to the YAML environment file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error (default: logging.level)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout of one-shot commands")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mockRESTCmd)
	rootCmd.AddCommand(changeSubmitterCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEnvironment reads --config and applies the level from the file unless
// --log-level was given.
func loadEnvironment() (*config.Environment, error) {
	env, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel == "" && env.Logging.Level != "" {
		logger = logging.NewStdoutLogger("dsfront", env.Logging.Level)
	}
	return env, nil
}
