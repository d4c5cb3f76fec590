package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/salusdata/bps2omop/internal/build"
	"github.com/salusdata/bps2omop/internal/config"
)

var (
	manifestPath string
	outDir       string
	dataDir      string
	buildTimeout time.Duration
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build <table>|all",
	Short: "Build one OMOP table, or all of them, from the BPS export",
	Long: `Build reads the sources the manifest declares for a table,
normalizes and vocabulary-maps them, runs the temporal derivations the
table calls for, and writes <out>/<table>.parquet.

"all" builds every table in the manifest in dependency order: reference
tables first, then visits, then the event tables linked against them.

Example:
  bps2omop build visit_occurrence --manifest bps.yaml --out omop/
  bps2omop build all --manifest bps.yaml --data /exports/2024-q3`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVar(&manifestPath, "manifest", "bps.yaml", "table manifest path")
	buildCmd.Flags().StringVar(&outDir, "out", "", "output directory (default from config)")
	buildCmd.Flags().StringVar(&dataDir, "data", "", "export data directory (default from config)")
	buildCmd.Flags().DurationVar(&buildTimeout, "timeout", 2*time.Hour, "overall build timeout")
}

func runBuild(cmd *cobra.Command, args []string) error {
	table := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), buildTimeout)
	defer cancel()

	cfg := config.FromViper(viper.GetViper())
	if outDir != "" {
		cfg.OutDir = outDir
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	log := newLogger(cfg)

	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	store, done, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open vocabulary: %w", err)
	}
	defer done()

	p := build.NewPipeline(cfg, manifest, store, log)

	start := time.Now()
	if table == "all" {
		err = p.BuildAll(ctx)
	} else {
		err = p.Build(ctx, table)
	}
	if err != nil {
		return err
	}

	log.Info().Dur("elapsed", time.Since(start)).Str("out", cfg.OutDir).Msg("build finished")
	return nil
}
