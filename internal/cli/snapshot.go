package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/emberwell/vault/internal/scan"
	"github.com/emberwell/vault/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage the materialized summary snapshot",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Materialize a fresh summary snapshot from the chronicle",
	RunE:  runSnapshotCreate,
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current summary snapshot",
	RunE:  runSnapshotShow,
}

func init() {
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sc := scan.New(cfg.ChronicleDir(), cfg.Vault.Categories)

	sum, err := snapshot.Materialize(cmd.Context(), sc, cfg.SnapshotPath())
	if err != nil {
		return fmt.Errorf("materialize snapshot: %w", err)
	}
	fmt.Printf("snapshot: %d record(s) across %d domain(s), %d session(s)\n",
		sum.Records, len(sum.Domains), len(sum.Sessions))
	return nil
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sum, err := snapshot.Load(cfg.SnapshotPath())
	if err != nil {
		return fmt.Errorf("no snapshot; run `vault snapshot create` first: %w", err)
	}

	fmt.Printf("built: %s\n", sum.BuiltAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("records: %d\n\n", sum.Records)

	fmt.Println("## Domains")
	printCounts(sum.Domains)
	fmt.Println()
	fmt.Println("## Sessions")
	printCounts(sum.Sessions)

	if len(sum.TopInsights) > 0 {
		fmt.Println()
		fmt.Println("## Top Insights")
		for i, ins := range sum.TopInsights {
			fmt.Printf("%d. [%.2f] %s (%s)\n", i+1, *ins.Intensity, ins.Content, ins.Domain)
		}
	}
	return nil
}

func printCounts(counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %d\n", k, counts[k])
	}
}
