package main

import (
	"errors"

	"github.com/spf13/cobra"

	gormstore "github.com/panyam/tutorauth/stores/gorm"
)

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the credentials table in DATABASE_DSN",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if cfg.DatabaseDSN == "" {
				return errors.New("DATABASE_DSN is not set; the file store needs no migration")
			}
			db, err := gormstore.Open(cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			if err := gormstore.AutoMigrate(db); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}
