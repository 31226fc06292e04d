package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/phivault/pkg/db"
	"github.com/doodlesbykumbi/phivault/pkg/ledger/gormledger"
	"github.com/doodlesbykumbi/phivault/pkg/model"
)

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List committed ledger events",
	Long: `List committed ledger events, oldest first.

Events carry correlation ids only. Pass the id of the last event seen with
--after to page through the log, for example to replay events into a
subscriber that missed them.

Example:
  phivaultctl events --limit 20
  phivaultctl events --after 01J0Z8W6R3B4M9Q7T2X5Y6Z7A8 -o json`,
	Run: func(cmd *cobra.Command, args []string) {
		after, _ := cmd.Flags().GetString("after")
		limit, _ := cmd.Flags().GetInt("limit")
		output, _ := cmd.Flags().GetString("output")

		if err := listEvents(cmd.Context(), after, limit, output); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list events: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().String("after", "", "Only list events with ids after this one")
	eventsCmd.Flags().Int("limit", 50, "Maximum number of events to list (0 for all)")
	eventsCmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
}

type eventView struct {
	ID        string          `json:"id"`
	TxID      string          `json:"txId"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func listEvents(ctx context.Context, after string, limit int, output string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	gdb, err := db.Connect(db.Config{})
	if err != nil {
		return err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer func() { _ = sqlDB.Close() }()
	}

	rows, err := gormledger.New(gdb).Events(ctx, after, limit)
	if err != nil {
		return err
	}
	return printEvents(os.Stdout, rows, output)
}

func printEvents(w io.Writer, rows []model.LedgerEvent, output string) error {
	if output == "json" {
		views := make([]eventView, 0, len(rows))
		for _, r := range rows {
			v := eventView{ID: r.ID, TxID: r.TxID, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
			if json.Valid(r.Payload) {
				v.Payload = r.Payload
			}
			views = append(views, v)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tNAME\tTX\tPAYLOAD")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.UTC().Format(time.RFC3339), r.Name, r.TxID, r.Payload)
	}
	return tw.Flush()
}
