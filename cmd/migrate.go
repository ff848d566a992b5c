package cmd

import (
	"fmt"

	"github.com/kazak5205/mebelplace-sub009/internal/bootstrap"
	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"github.com/kazak5205/mebelplace-sub009/internal/infra/db"
	"github.com/kazak5205/mebelplace-sub009/internal/infra/logger"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/repo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and the root service key",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, d, err := openStore()
	if err != nil {
		return err
	}
	if err := migrate(cmd, cfg, log, d); err != nil {
		return err
	}
	log.Info("schema up to date", zap.Int("tables", len(model.Tables())))
	return nil
}

func openStore() (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}
	d, err := db.New(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database: %w", err)
	}
	return cfg, log, d, nil
}

func migrate(cmd *cobra.Command, cfg *config.Config, log *zap.Logger, d *gorm.DB) error {
	if err := d.WithContext(cmd.Context()).AutoMigrate(model.Tables()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return bootstrap.EnsureRootServiceKey(cmd.Context(), repo.NewServiceKeyRepo(d), cfg, log)
}
