package cmd

import (
	"encoding/json"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/loganalyzer/internal/common/appcontext"
	"github.com/G-Research/loganalyzer/internal/loganalyzer"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/ingest"
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyzes a local access log and prints its summary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeFile,
	}
	cmd.Flags().Int("batchSize", ingest.DefaultBatchSize, "Number of events written per batch")
	return cmd
}

func analyzeFile(cmd *cobra.Command, args []string) error {
	batchSize, err := cmd.Flags().GetInt("batchSize")
	if err != nil {
		return errors.WithStack(err)
	}
	// stdout carries the summary
	log.SetOutput(cmd.ErrOrStderr())
	summary, err := loganalyzer.AnalyzeFile(appcontext.Background(), args[0], batchSize)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return errors.WithStack(encoder.Encode(summary))
}
