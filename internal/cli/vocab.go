package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/salusdata/bps2omop/internal/build"
	"github.com/salusdata/bps2omop/internal/config"
)

// vocabCmd represents the vocab command
var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Inspect vocabulary mapping",
}

var vocabUnmappedCmd = &cobra.Command{
	Use:   "unmapped <table>",
	Short: "List source values that resolve to no standard concept",
	Long: `Unmapped loads one table's sources, runs the vocabulary mapping
exactly as build would, and prints the distinct source values that ended
with concept 0, with their row counts. Useful for growing the manifest's
fallback vocabularies before a full build.`,
	Args: cobra.ExactArgs(1),
	RunE: runVocabUnmapped,
}

func init() {
	rootCmd.AddCommand(vocabCmd)
	vocabCmd.AddCommand(vocabUnmappedCmd)

	vocabUnmappedCmd.Flags().StringVar(&manifestPath, "manifest", "bps.yaml", "table manifest path")
	vocabUnmappedCmd.Flags().StringVar(&dataDir, "data", "", "export data directory (default from config)")
}

func runVocabUnmapped(cmd *cobra.Command, args []string) error {
	table := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	cfg := config.FromViper(viper.GetViper())
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

	report, err := build.NewPipeline(cfg, manifest, store, log).Unmapped(ctx, table)
	if err != nil {
		return err
	}
	if len(report) == 0 {
		fmt.Println("all source values mapped")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE VALUE\tVOCABULARY\tROWS")
	for _, entry := range report {
		fmt.Fprintf(w, "%s\t%s\t%d\n", entry.SourceValue, entry.Vocabulary, entry.Rows)
	}
	return w.Flush()
}
