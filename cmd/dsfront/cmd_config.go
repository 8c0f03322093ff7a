package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dspace-go/dsfront/internal/config"
	"github.com/dspace-go/dsfront/internal/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the environment file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective environment, overrides applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(env)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the production defaults to --config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env := config.Production()
		if err := env.Save(configPath); err != nil {
			return err
		}
		logger.Info("wrote environment", logging.Field{Key: "path", Value: configPath})
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
