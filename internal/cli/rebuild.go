package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the derived cache indexes",
	Long:  "Rescan the chronicle and regenerate the inverted index, domain map, and session map under <root>/cache/. Safe to run at any time; the cache is derived state.",
	RunE:  runRebuild,
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, eng := buildEngine(&cfg)

	stats, err := eng.RebuildCache(cmd.Context())
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	fmt.Printf("scanned %d file(s), indexed %d record(s)\n", stats.FilesScanned, stats.RecordsIndexed)
	for _, w := range stats.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	return nil
}
