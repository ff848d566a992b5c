package cmd

import (
	"fmt"

	"github.com/kazak5205/mebelplace-sub009/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedFile string

var SeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Migrate, then load development fixtures from a YAML file",
	RunE:  runSeed,
}

func init() {
	SeedCmd.Flags().StringVarP(&seedFile, "file", "f", "configs/seed.yaml", "fixtures file")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, log, d, err := openStore()
	if err != nil {
		return err
	}
	if err := migrate(cmd, cfg, log, d); err != nil {
		return err
	}

	f, err := seed.LoadFile(seedFile)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if err := seed.Apply(cmd.Context(), d, cfg, f); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	log.Info("fixtures loaded",
		zap.String("file", seedFile),
		zap.Int("users", len(f.Users)),
		zap.Int("orders", len(f.Orders)),
		zap.Int("videos", len(f.Videos)),
		zap.Int("stories", len(f.Stories)),
		zap.Int("service_keys", len(f.ServiceKeys)),
	)
	return nil
}
