package main

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deal-intel/internal/model"
	"github.com/sells-group/deal-intel/internal/report"
)

var historyFlags struct {
	tenant string
	deal   string
	limit  int
	format string
	output string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List a deal's stored assessments, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(historyFlags.format)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		list, err := env.Service.History(ctx, historyFlags.tenant, historyFlags.deal, historyFlags.limit)
		if err != nil {
			return err
		}

		return withOutput(cmd.OutOrStdout(), historyFlags.output, func(w io.Writer) error {
			return writeHistory(w, list, format)
		})
	},
}

func writeHistory(w io.Writer, list []model.Assessment, format report.Format) error {
	switch format {
	case report.FormatTable:
		return report.WriteHistoryTable(w, list)
	case report.FormatJSON:
		return report.WriteJSON(w, list)
	case report.FormatXLSX:
		return report.WriteXLSX(w, list)
	default:
		return eris.Errorf("history: format %q is not supported here", format)
	}
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyFlags.tenant, "tenant", "", "tenant id")
	f.StringVar(&historyFlags.deal, "deal", "", "deal id")
	f.IntVar(&historyFlags.limit, "limit", 20, "max assessments to list")
	f.StringVar(&historyFlags.format, "format", "table", "output format: table, json, xlsx")
	f.StringVarP(&historyFlags.output, "output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(historyCmd)
}
