package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"estatecrm.org/internal/config"
	"estatecrm.org/internal/obs"
)

var (
	version = "dev"
	commit  = "none"

	cfg        config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "crmapi",
	Short: "Real-estate CRM API server",
	Long: `crmapi serves the authentication, authorization and buyer-lead
endpoints of the real-estate CRM.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		obs.SetLevel(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CRM_CONFIG"), "Path to a YAML config file (env: CRM_CONFIG)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapAdminCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "crmapi %s (%s)\n", version, commit)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
