// Package cli wires the bps2omop commands: build OMOP tables from a BPS
// export, inspect unmapped vocabulary values, manage configuration.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/salusdata/bps2omop/internal/config"
	"github.com/salusdata/bps2omop/internal/vocab"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bps2omop",
	Short: "Convert a BPS health-system export to OMOP-CDM parquet tables",
	Long: `bps2omop is an offline ETL for BPS exports.

It reads the CSV and parquet files a BPS export ships, maps their codes
through an OMOP vocabulary (Postgres or Athena files), derives visits
and observation periods from the raw stay intervals, links clinical
events to the visits they happened in, and writes one parquet file per
OMOP table.

Which files feed which table, and how their columns and codes
translate, is described in a YAML manifest maintained alongside the
export.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bps2omop v0.3.1")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.bps2omop/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(home + "/.bps2omop")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match BPS2OMOP_*
	viper.SetEnvPrefix("BPS2OMOP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// newLogger builds the run logger: console output on stderr, debug level
// when --verbose is set.
func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// openStore selects the concept store: Postgres when a DSN is
// configured, otherwise the in-memory store loaded from Athena exports.
// Either way it is wrapped in the lookup cache. The returned func
// releases the store.
func openStore(ctx context.Context, cfg *config.Config) (vocab.ConceptStore, func(), error) {
	var (
		inner vocab.ConceptStore
		done  = func() {}
	)
	switch {
	case cfg.Vocabulary.PostgresDSN != "":
		pg, err := vocab.NewPostgresStore(ctx, cfg.Vocabulary.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		inner = pg
		done = pg.Close
	case cfg.Vocabulary.ConceptPath != "":
		mem, err := vocab.LoadMemoryStore(cfg.Vocabulary.ConceptPath, cfg.Vocabulary.RelationshipPath)
		if err != nil {
			return nil, nil, err
		}
		inner = mem
	default:
		return nil, nil, fmt.Errorf("no vocabulary configured: set vocabulary.postgres_dsn or vocabulary.concept_path")
	}

	return vocab.NewCachedStore(inner, cfg.Vocabulary.CacheTTL, cfg.Vocabulary.CacheCleanup), done, nil
}
