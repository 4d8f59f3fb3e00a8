package report

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/deal-intel/internal/meddpicc"
	"github.com/sells-group/deal-intel/internal/model"
)

// Sheet names in exported workbooks.
const (
	SheetSummary  = "Summary"
	SheetElements = "Elements"
	SheetActions  = "Actions"
)

var (
	summaryHeader  = []string{"assessment_id", "deal_id", "created_at", "overall_score", "status", "risk_score", "risk_level", "risk_trend", "signals", "critical_gaps"}
	elementsHeader = []string{"assessment_id", "element", "total_score", "presence", "confidence", "completeness", "evidence_count"}
	actionsHeader  = []string{"assessment_id", "rank", "priority", "urgency", "source", "element", "impact", "action"}
)

// WriteXLSX exports assessments to a workbook with Summary, Elements and
// Actions sheets.
func WriteXLSX(w io.Writer, list []model.Assessment) error {
	f, err := BuildWorkbook(list)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}

// BuildWorkbook assembles the export workbook in memory.
func BuildWorkbook(list []model.Assessment) (*xlsx.File, error) {
	f := xlsx.NewFile()

	summary, err := addSheet(f, SheetSummary, summaryHeader)
	if err != nil {
		return nil, err
	}
	elements, err := addSheet(f, SheetElements, elementsHeader)
	if err != nil {
		return nil, err
	}
	actions, err := addSheet(f, SheetActions, actionsHeader)
	if err != nil {
		return nil, err
	}

	for _, a := range list {
		row := summary.AddRow()
		addStrings(row, a.ID, a.DealID, formatTime(a))
		row.AddCell().SetFloat(a.OverallScore)
		addStrings(row, string(a.Status))
		row.AddCell().SetFloat(a.RiskScore)

		res := a.Result
		if res == nil {
			addStrings(row, "", "")
			row.AddCell().SetInt(a.SignalCount)
			row.AddCell().SetInt(0)
			continue
		}
		level, trend := "", ""
		if ra := res.RiskAnalysis; ra != nil {
			level, trend = ra.RiskLevel, string(ra.RiskTrend)
		}
		addStrings(row, level, trend)
		row.AddCell().SetInt(a.SignalCount)
		row.AddCell().SetInt(len(res.CriticalGaps))

		for _, el := range meddpicc.AllElements() {
			es := res.ElementScores[el]
			er := elements.AddRow()
			addStrings(er, a.ID, el.Label())
			er.AddCell().SetFloat(es.TotalScore)
			er.AddCell().SetFloat(es.PresenceScore)
			er.AddCell().SetFloat(es.ConfidenceScore)
			er.AddCell().SetFloat(es.CompletenessScore)
			er.AddCell().SetInt(es.EvidenceCount)
		}

		for i, act := range res.NextActions {
			ar := actions.AddRow()
			addStrings(ar, a.ID)
			ar.AddCell().SetInt(i + 1)
			addStrings(ar, string(act.Priority), act.Urgency, string(act.Source), act.Element.Label())
			ar.AddCell().SetFloat(act.Impact)
			addStrings(ar, act.Action)
		}
	}

	return f, nil
}

func addSheet(f *xlsx.File, name string, header []string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: add sheet %s", name)
	}
	addStrings(sheet.AddRow(), header...)
	return sheet, nil
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func formatTime(a model.Assessment) string {
	if a.CreatedAt.IsZero() {
		return ""
	}
	return a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
}
