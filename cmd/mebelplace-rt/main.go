package main

import (
	"fmt"
	"os"

	"github.com/kazak5205/mebelplace-sub009/cmd"
	"github.com/spf13/cobra"
)

var version = "dev"

//	@title						MebelPlace Realtime API
//	@version					1.0
//	@description				Order lifecycle, notifications and the realtime gateway.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				"Bearer <user token>" or "Bearer sk-mp-<secret>" with X-Actor-Id
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mebelplace-rt",
	Short: "MebelPlace realtime sync service",
	Long: `MebelPlace realtime sync service: order lifecycle API, notification
delivery and the websocket gateway for chats, engagement and calls.

Configuration is read from config.yaml (or CONFIG_FILE) with MEBELPLACE_*
environment overrides.`,
	RunE:         cmd.ServeCmd.RunE,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cmd.ServeCmd)
	rootCmd.AddCommand(cmd.MigrateCmd)
	rootCmd.AddCommand(cmd.SeedCmd)
	rootCmd.AddCommand(cmd.ProbeCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mebelplace-rt version %s\n", version)
	},
}
