package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/journal"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect journaled action runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("action")
		limit, _ := cmd.Flags().GetInt("limit")

		j, err := journal.Open(cfg.Journal.Path, log)
		if err != nil {
			return err
		}
		defer j.Close()

		runs, err := j.List(context.Background(), action.Kind(kind), limit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTION\tPHASE\tORDER\tTX\tUPDATED\tMESSAGE")
		for _, r := range runs {
			tx := ""
			if r.TxHash != nil {
				tx = r.TxHash.TerminalString()
			}
			msg := r.ErrorMessage
			if msg == "" {
				msg = r.Caveat
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Action, r.Phase, r.OrderID, tx, r.UpdatedAt.Local().Format("2006-01-02 15:04:05"), msg)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := journal.Open(cfg.Journal.Path, log)
		if err != nil {
			return err
		}
		defer j.Close()

		run, err := j.Get(context.Background(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runsListCmd.Flags().String("action", "", "only runs of this action")
	runsListCmd.Flags().Int("limit", journal.DefaultListLimit, "maximum number of runs")
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
