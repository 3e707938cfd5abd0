package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Nyenzo/tule-initiative/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tuleapi",
	Short: "Tule Initiative API server",
	Long: `Tule Initiative API server provides identity, sessions, user profiles,
and role administration for the Tule Initiative community platform.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().String("server-url", "", "Public server base URL (env: SERVER_URL)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
