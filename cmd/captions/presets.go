package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-captions/internal/logging"
	"github.com/heimdex/heimdex-captions/internal/style"
)

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Inspect stored caption style presets",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored presets with their resolved styles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := ctx.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			resolver := style.NewResolver(style.NewSQLiteStore(database.Conn()), logging.New(cmd.ErrOrStderr(), "warn", "text"))
			records, err := resolver.List(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No presets stored")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPresets(records))
			return nil
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print presets as JSON")

	cmd.AddCommand(list)
	return cmd
}

func renderPresets(records []*style.Record) string {
	headers := []string{"ID", "Name", "Font", "Size", "Color", "Words", "Created"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		st := rec.Preset.Apply(style.Defaults())
		rows = append(rows, []string{
			rec.ID,
			rec.Name,
			st.Font,
			strconv.Itoa(st.FontSize),
			st.PrimaryColor,
			strconv.Itoa(st.GroupSize),
			rec.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return renderTable(headers, rows, aligns)
}
