package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capigrid/capigrid/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configValidateCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/capigrid/capigrid.yaml", "Path to configuration file")
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Base URL: %s\n", cfg.Server.BaseURL)
	fmt.Printf("  Database path: %s\n", cfg.Database.Path)
	fmt.Printf("  Google sign-in: %v\n", cfg.Auth.Google.Enabled)
	fmt.Printf("  Mail: %v\n", cfg.Mail.Enabled)
	if cfg.Mail.Enabled {
		fmt.Printf("    Relay: %s\n", cfg.Mail.RelayAddr)
		fmt.Printf("    Queue path: %s\n", cfg.Mail.QueuePath)
	}
	fmt.Printf("  Metrics: %v\n", cfg.Metrics.Enabled)

	return nil
}
