package cmd

import (
	"strings"

	"github.com/Iron-Ham/wrangler/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "wrangler",
	Short: "Lifecycle coordinator for ephemeral AI workers",
	Long: `Wrangler manages teams of subprocess-backed AI workers: it drives each
worker through its lifecycle, reuses finished workers through a bounded
pool, suspends interrupted conversations to disk so they can be resumed
later, and adapts its cleanup aggressiveness to resource pressure.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/wrangler/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/wrangler")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("WRANGLER")
	// Replace dots with underscores for nested keys in env vars
	// e.g., WRANGLER_POOL_MAX_POOL_SIZE for pool.max_pool_size
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
