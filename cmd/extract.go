package main

import (
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deal-intel/internal/assess"
	"github.com/sells-group/deal-intel/internal/model"
	"github.com/sells-group/deal-intel/internal/report"
)

var extractFlags struct {
	tenant      string
	deal        string
	title       string
	kind        string
	opportunity string
	format      string
	output      string
	dryRun      bool
}

var extractCmd = &cobra.Command{
	Use:   "extract <transcript>",
	Short: "Extract MEDDPICC data from a transcript, score it and store the assessment",
	Long:  "Sends a transcript ('-' for stdin) to Claude, scores the extraction against the deal's history and stores it. With --dry-run the raw extraction is printed and nothing is stored.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		format, err := report.ParseFormat(extractFlags.format)
		if err != nil {
			return err
		}

		content, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		title := extractFlags.title
		if title == "" && args[0] != "-" {
			title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}

		if extractFlags.dryRun {
			if err := cfg.Validate("extract"); err != nil {
				return err
			}
			x, err := initExtractor().Extract(ctx, &model.Document{
				Title:   title,
				Kind:    model.ParseDocumentKind(extractFlags.kind),
				Content: string(content),
			})
			if err != nil {
				return eris.Wrap(err, "extract")
			}
			return report.WriteJSON(cmd.OutOrStdout(), x)
		}

		env, err := initEnv(ctx, envOptions{Extract: true, CRM: true, InlineCRM: true})
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Service.Assess(ctx, assess.AssessRequest{
			TenantID:      extractFlags.tenant,
			DealID:        extractFlags.deal,
			Title:         title,
			Kind:          extractFlags.kind,
			Content:       string(content),
			OpportunityID: extractFlags.opportunity,
		})
		if err != nil {
			return err
		}

		zap.L().Info("assessment stored",
			zap.String("assessment_id", out.Assessment.ID),
			zap.Bool("cache_hit", out.CacheHit),
			zap.Float64("cost_usd", out.CostUSD),
			zap.Bool("crm_synced", out.Synced),
		)

		return writeResult(cmd.OutOrStdout(), extractFlags.output, out.Assessment.Result, format)
	},
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractFlags.tenant, "tenant", "", "tenant id (required unless --dry-run)")
	f.StringVar(&extractFlags.deal, "deal", "", "deal id (required unless --dry-run)")
	f.StringVar(&extractFlags.title, "title", "", "document title (default: file name)")
	f.StringVar(&extractFlags.kind, "kind", "transcript", "document kind: transcript, email, notes, other")
	f.StringVar(&extractFlags.opportunity, "opportunity", "", "Salesforce Opportunity id to update")
	f.StringVar(&extractFlags.format, "format", "table", "output format: table, json, csv, xlsx")
	f.StringVarP(&extractFlags.output, "output", "o", "", "write to file instead of stdout")
	f.BoolVar(&extractFlags.dryRun, "dry-run", false, "print the raw extraction without scoring or storing")
	rootCmd.AddCommand(extractCmd)
}
