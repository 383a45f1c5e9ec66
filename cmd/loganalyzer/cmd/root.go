package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/loganalyzer/internal/common/config"
	"github.com/G-Research/loganalyzer/internal/common/logging"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/configuration"
)

const (
	CustomConfigLocation string = "config"
	defaultConfigPath           = "./config/loganalyzer"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "loganalyzer",
		SilenceUsage: true,
		Short:        "Ingests web server access logs and serves their statistics and events",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.BindCommandlineArguments(cmd.Flags())
		},
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")

	cmd.AddCommand(
		runCmd(),
		migrateCmd(),
		analyzeCmd(),
	)

	return cmd
}

func loadConfig() (configuration.Configuration, error) {
	var cfg configuration.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	if _, err := config.LoadConfig(&cfg, defaultConfigPath, userSpecifiedConfigs); err != nil {
		return cfg, err
	}
	if err := config.Validate(cfg); err != nil {
		config.LogValidationErrors(err)
		return cfg, err
	}
	if err := logging.ConfigureLogging(cfg.Logging); err != nil {
		return cfg, err
	}
	return cfg, nil
}
