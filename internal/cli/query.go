package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/emberwell/vault/internal/query"
	"github.com/emberwell/vault/internal/record"
)

var (
	queryCategory  string
	queryDomain    string
	querySession   string
	queryKeyword   string
	queryMin       float64
	queryKinds     []string
	querySince     string
	queryUntil     string
	queryLimit     int
	queryAscending bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the chronicle",
	Long:  "Query records by domain, session, keyword, kind, intensity, and time range. Uses the derived cache when fresh, scans otherwise; results are identical either way.",
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryCategory, "category", "c", "", "Filter by category (aliases accepted)")
	queryCmd.Flags().StringVarP(&queryDomain, "domain", "d", "", "Filter by domain")
	queryCmd.Flags().StringVarP(&querySession, "session", "s", "", "Filter by session id")
	queryCmd.Flags().StringVarP(&queryKeyword, "keyword", "k", "", "Filter by content keyword")
	queryCmd.Flags().Float64Var(&queryMin, "min-intensity", 0, "Minimum intensity (excludes unweighted records)")
	queryCmd.Flags().StringArrayVarP(&queryKinds, "type", "t", nil, "Filter by record kind (repeatable)")
	queryCmd.Flags().StringVar(&querySince, "since", "", "Only records at or after this RFC3339 time")
	queryCmd.Flags().StringVar(&queryUntil, "until", "", "Only records at or before this RFC3339 time")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 0, "Maximum number of results (0 = unlimited)")
	queryCmd.Flags().BoolVar(&queryAscending, "asc", false, "Oldest first instead of newest first")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, eng := buildEngine(&cfg)

	f := query.Filter{
		Domain:       queryDomain,
		Session:      querySession,
		Keyword:      queryKeyword,
		MinIntensity: queryMin,
		Limit:        queryLimit,
		Ascending:    queryAscending,
	}
	if queryCategory != "" {
		if canonical, err := cfg.ResolveCategory(queryCategory); err == nil {
			f.Category = canonical
		} else {
			f.Category = queryCategory
		}
	}
	for _, k := range queryKinds {
		f.Kinds = append(f.Kinds, record.Kind(k))
	}
	if querySince != "" {
		t, err := time.Parse(time.RFC3339, querySince)
		if err != nil {
			return fmt.Errorf("parse --since: %w", err)
		}
		f.Since = t
	}
	if queryUntil != "" {
		t, err := time.Parse(time.RFC3339, queryUntil)
		if err != nil {
			return fmt.Errorf("parse --until: %w", err)
		}
		f.Until = t
	}

	recs, err := eng.Query(cmd.Context(), f)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No records found.")
		return nil
	}
	printRecords(recs)
	return nil
}

func printRecords(recs []record.Record) {
	for _, r := range recs {
		intensity := ""
		if r.Intensity != nil {
			intensity = fmt.Sprintf(" [%.2f]", *r.Intensity)
		}
		fmt.Printf("%s  %s/%s%s  %s\n", r.Timestamp, r.Type, r.Domain, intensity, r.ID)
		fmt.Printf("  %s\n", r.Content)
		if len(r.BuildsOn) > 0 {
			fmt.Printf("  builds on: %v\n", r.BuildsOn)
		}
	}
}
