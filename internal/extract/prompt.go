package extract

import (
	"fmt"
	"strings"

	"github.com/sells-group/deal-intel/internal/meddpicc"
	"github.com/sells-group/deal-intel/internal/model"
)

// truncationMarker is appended when a document exceeds the character budget.
const truncationMarker = "\n\n[... transcript truncated ...]"

// elementFields describes the keys the model should fill for each element.
var elementFields = map[meddpicc.Element]string{
	meddpicc.Metrics:          `"identified": [quantified outcomes], "baseline": string, "target": string`,
	meddpicc.EconomicBuyer:    `"identified": "name, title", "access": "direct" | "indirect" | "none"`,
	meddpicc.DecisionCriteria: `"criteria": [technical, business or commercial criteria]`,
	meddpicc.DecisionProcess:  `"steps": [ordered approval steps], "timeline": string`,
	meddpicc.PaperProcess:     `"steps": [legal, procurement, security review steps], "timeline": string`,
	meddpicc.ImplicatePain:    `"pains": [business pains], "business_impact": string, "urgency_signals": [string]`,
	meddpicc.Champion:         `"identified": "name, title", "role": string, "strength": "strong" | "moderate" | "weak"`,
	meddpicc.Competition:      `"competitors": [named alternatives incl. status quo], "differentiators": [string]`,
}

// systemPrompt is the cached extraction instruction. It is identical for every
// document so the prompt cache can serve it.
var systemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are an expert B2B sales analyst. You read sales conversation transcripts, emails and call notes and extract MEDDPICC qualification data.

Rules:
- Use ONLY information stated or clearly implied in the document
- Return a single JSON object and nothing else
- Include all eight element keys; use null for an element with no information
- Every element object carries "confidence" (0.0-1.0) and "evidence" (verbatim or near-verbatim quotes)
- Prefer specific names, numbers and dates over summaries
- Quote risk language as it was said (budget freezes, delays, competitor mentions, blockers)

Output schema:
{
`)
	elements := meddpicc.AllElements()
	for i, e := range elements {
		sep := ","
		if i == len(elements)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "  %q: {%s, \"confidence\": number, \"evidence\": [string]}%s\n", string(e), elementFields[e], sep)
	}
	b.WriteString("}")
	return b.String()
}

// SystemPrompt returns the extraction system prompt.
func SystemPrompt() string {
	return systemPrompt
}

// buildUserMessage wraps the document content, truncating it to maxChars.
// Truncation respects rune boundaries.
func buildUserMessage(doc *model.Document, maxChars int) (string, bool) {
	content := doc.Content
	truncated := false
	if maxChars > 0 && len(content) > maxChars {
		cut := maxChars
		for cut > 0 && !isRuneStart(content[cut]) {
			cut--
		}
		content = content[:cut] + truncationMarker
		truncated = true
	}

	title := doc.Title
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("Document type: %s\nTitle: %s\n\n<document>\n%s\n</document>\n\nExtract the MEDDPICC JSON object.",
		doc.Kind, title, content), truncated
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
