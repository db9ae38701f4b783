package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emberwell/vault/internal/query"
)

var ancestorsCmd = &cobra.Command{
	Use:   "ancestors <record-id>",
	Short: "Show the builds_on lineage of a record",
	Long:  "Follow builds_on references transitively, nearest ancestor first. A cycle in the chain is corrupt data and reported as an error.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAncestors,
}

func runAncestors(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, eng := buildEngine(&cfg)

	recs, err := eng.Ancestors(cmd.Context(), args[0])
	if err != nil {
		var cycle *query.CycleError
		if errors.As(err, &cycle) {
			return fmt.Errorf("lineage of %s is corrupt: %w", args[0], err)
		}
		return err
	}
	if len(recs) == 0 {
		fmt.Printf("%s has no ancestors.\n", args[0])
		return nil
	}
	printRecords(recs)
	return nil
}
