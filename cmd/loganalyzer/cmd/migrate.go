package cmd

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/loganalyzer/internal/common/appcontext"
	"github.com/G-Research/loganalyzer/internal/loganalyzer"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrates the log analyzer database to the latest version",
		RunE:  migrateDatabase,
	}
	return cmd
}

func migrateDatabase(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	start := time.Now()
	log.Infof("Beginning %s database migration", config.Database.Type)
	if err := loganalyzer.Migrate(appcontext.Background(), config.Database); err != nil {
		return errors.WithMessage(err, "failed to migrate database")
	}
	log.Infof("Database migrated in %s", time.Since(start))
	return nil
}
