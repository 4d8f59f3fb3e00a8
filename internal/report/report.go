// Package report renders MEDDPICC results and assessment history for the
// terminal, CSV pipelines and spreadsheet export.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/deal-intel/internal/meddpicc"
	"github.com/sells-group/deal-intel/internal/model"
)

// Format selects an output renderer.
type Format string

// Output formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", eris.Errorf("report: unsupported format %q", s)
	}
}

var titleCase = cases.Title(language.English)

// title turns "unqualified" or "this_week" into "Unqualified" or "This Week".
func title(s string) string {
	return titleCase.String(strings.ReplaceAll(s, "_", " "))
}

// WriteResult renders a single result in the given format. XLSX output
// wraps the result in an unsaved assessment.
func WriteResult(w io.Writer, res *meddpicc.Result, f Format) error {
	switch f {
	case FormatTable:
		return WriteTable(w, res)
	case FormatJSON:
		return WriteJSON(w, res)
	case FormatCSV:
		return WriteCSV(w, res)
	case FormatXLSX:
		return WriteXLSX(w, []model.Assessment{{Result: res, OverallScore: res.OverallScore, Status: res.QualificationStatus}})
	default:
		return eris.Errorf("report: unsupported format %q", f)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "report: encode json")
	}
	return nil
}

// WriteTable prints a human-readable summary of res.
func WriteTable(w io.Writer, res *meddpicc.Result) error {
	p := &printer{w: w}

	p.printf("Overall score: %.2f / 100 (%s)\n", res.OverallScore, title(string(res.QualificationStatus)))
	if ra := res.RiskAnalysis; ra != nil {
		p.printf("Risk:          %.3f (%s, %s, %d signals)\n", ra.OverallRiskScore, ra.RiskLevel, ra.RiskTrend, ra.TotalSignals)
	}

	p.printf("\n%-20s %7s %9s %11s %13s %9s\n", "Element", "Score", "Presence", "Confidence", "Completeness", "Evidence")
	p.printf("%s\n", strings.Repeat("-", 74))
	for _, el := range meddpicc.AllElements() {
		es := res.ElementScores[el]
		p.printf("%-20s %7.2f %9.2f %11.2f %13.2f %9d\n",
			el.Label(), es.TotalScore, es.PresenceScore, es.ConfidenceScore, es.CompletenessScore, es.EvidenceCount)
	}

	if len(res.CriticalGaps) > 0 {
		p.printf("\nCritical gaps:\n")
		for _, g := range res.CriticalGaps {
			p.printf("  %-20s score %6.2f  impact %5.2f  %s\n", g.Element.Label(), g.Score, g.Impact, g.Severity)
		}
	}

	if len(res.NextActions) > 0 {
		p.printf("\nNext actions:\n")
		for i, a := range res.NextActions {
			p.printf("  %2d. [%s] %s (%s)\n", i+1, a.Priority, a.Action, title(a.Urgency))
		}
	}

	if len(res.MeetingObjectives) > 0 {
		p.printf("\nMeeting objectives:\n")
		for _, o := range res.MeetingObjectives {
			p.printf("  - %s\n", o)
		}
	}

	if ra := res.RiskAnalysis; ra != nil && ra.TotalSignals > 0 {
		p.printf("\nRisk signals:\n")
		for _, s := range ra.Signals.All() {
			esc := ""
			if s.Escalated {
				esc = " (escalated)"
			}
			p.printf("  [%s%s] %s: %q (%s)\n", s.Severity, esc, s.Title, s.Evidence, s.SourceElement.Label())
		}
	}

	return p.err
}

var elementCSVHeader = []string{
	"element", "label", "total_score", "presence_score", "confidence_score",
	"completeness_score", "confidence", "content_kind", "content_items",
	"evidence_count", "specific_evidence", "critical_gap",
}

// WriteCSV writes one row per element.
func WriteCSV(w io.Writer, res *meddpicc.Result) error {
	gaps := make(map[meddpicc.Element]bool, len(res.CriticalGaps))
	for _, g := range res.CriticalGaps {
		gaps[g.Element] = true
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(elementCSVHeader); err != nil {
		return eris.Wrap(err, "report: write CSV header")
	}
	for _, el := range meddpicc.AllElements() {
		es := res.ElementScores[el]
		row := []string{
			string(el),
			el.Label(),
			fmt.Sprintf("%.2f", es.TotalScore),
			fmt.Sprintf("%.2f", es.PresenceScore),
			fmt.Sprintf("%.2f", es.ConfidenceScore),
			fmt.Sprintf("%.2f", es.CompletenessScore),
			fmt.Sprintf("%.2f", es.Confidence),
			es.ContentKind,
			fmt.Sprintf("%d", es.ContentItems),
			fmt.Sprintf("%d", es.EvidenceCount),
			fmt.Sprintf("%d", es.SpecificEvidence),
			fmt.Sprintf("%v", gaps[el]),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "report: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush CSV")
}

// WriteHistoryTable prints one line per assessment.
func WriteHistoryTable(w io.Writer, list []model.Assessment) error {
	p := &printer{w: w}
	if len(list) == 0 {
		p.printf("No assessments.\n")
		return p.err
	}
	p.printf("%-36s %-20s %7s %-12s %6s %8s %-10s\n", "ID", "Created", "Score", "Status", "Risk", "Signals", "Trend")
	p.printf("%s\n", strings.Repeat("-", 106))
	for _, a := range list {
		trend := ""
		if a.Result != nil && a.Result.RiskAnalysis != nil {
			trend = string(a.Result.RiskAnalysis.RiskTrend)
		}
		p.printf("%-36s %-20s %7.2f %-12s %6.3f %8d %-10s\n",
			a.ID, a.CreatedAt.UTC().Format("2006-01-02 15:04:05"), a.OverallScore, a.Status, a.RiskScore, a.SignalCount, trend)
	}
	return p.err
}

// printer keeps the first write error so table rendering reads linearly.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	if _, err := fmt.Fprintf(p.w, format, args...); err != nil {
		p.err = eris.Wrap(err, "report: write table")
	}
}
