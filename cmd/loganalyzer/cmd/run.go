package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/loganalyzer/internal/loganalyzer"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serves the log analyzer API",
		RunE:  runServer,
	}
	return cmd
}

func runServer(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	return loganalyzer.Run(config)
}
