package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deal-intel/internal/meddpicc"
	"github.com/sells-group/deal-intel/internal/report"
)

var (
	scoreFormat string
	scoreOutput string
)

var scoreCmd = &cobra.Command{
	Use:   "score [payload.json]",
	Short: "Score an extraction payload without storing it",
	Long:  "Reads a MEDDPICC extraction payload from a file or stdin ('-' or no argument) and prints the scored result.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(scoreFormat)
		if err != nil {
			return err
		}

		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		payload, err := readInput(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}

		engine, err := initEngine()
		if err != nil {
			return err
		}

		res, err := engine.CalculateJSON(payload)
		if err != nil {
			return eris.Wrap(err, "score payload")
		}

		return writeResult(cmd.OutOrStdout(), scoreOutput, res, format)
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreFormat, "format", "table", "output format: table, json, csv, xlsx")
	scoreCmd.Flags().StringVarP(&scoreOutput, "output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(scoreCmd)
}

// writeResult renders res to path, or to out when path is empty.
func writeResult(out io.Writer, path string, res *meddpicc.Result, format report.Format) error {
	return withOutput(out, path, func(w io.Writer) error {
		return report.WriteResult(w, res, format)
	})
}

// readInput reads path, or stdin when path is "-".
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, eris.Wrap(err, "read stdin")
		}
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return b, nil
}

// withOutput runs fn against path, or against out when path is empty.
func withOutput(out io.Writer, path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(out)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := fn(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}
