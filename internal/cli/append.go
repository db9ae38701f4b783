package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emberwell/vault/internal/record"
)

var (
	appendKind      string
	appendSession   string
	appendIntensity float64
	appendBuildsOn  []string
	appendContext   string
)

var appendCmd = &cobra.Command{
	Use:   "append <category> <domain> <content...>",
	Short: "Append a record to the chronicle",
	Long:  "Append one record to <root>/chronicle/<category>/<domain>/. The category may be an alias (mistakes, principles).",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runAppend,
}

func init() {
	appendCmd.Flags().StringVarP(&appendKind, "type", "t", "insight", "Record kind (insight, learning, value, transformation, event)")
	appendCmd.Flags().StringVarP(&appendSession, "session", "s", "", "Session id (names the target file)")
	appendCmd.MarkFlagRequired("session")
	appendCmd.Flags().Float64VarP(&appendIntensity, "intensity", "i", -1, "Intensity in [0,1]")
	appendCmd.Flags().StringArrayVar(&appendBuildsOn, "builds-on", nil, "Id of a record this one builds on (repeatable)")
	appendCmd.Flags().StringVar(&appendContext, "context", "", "Free-form context note")
}

func runAppend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, _ := buildEngine(&cfg)

	rec := record.Record{
		Type:      record.Kind(appendKind),
		SessionID: appendSession,
		Content:   strings.Join(args[2:], " "),
		BuildsOn:  appendBuildsOn,
		Context:   appendContext,
	}
	if appendIntensity >= 0 {
		v := appendIntensity
		rec.Intensity = &v
	}

	id, err := st.Append(cmd.Context(), args[0], args[1], rec)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}
	fmt.Println(id)
	return nil
}
