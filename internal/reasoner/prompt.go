// File path: internal/reasoner/prompt.go
package reasoner

import (
	"fmt"
	"strings"
)

const judgeSystemPrompt = `You are a regulatory compliance analyst. You are
given one section of a Standard Operating Procedure and one regulatory clause
that may govern it. Judge whether the procedure satisfies the clause.

Status vocabulary (use exactly one):
- "Compliant": the procedure fully satisfies the clause.
- "PartiallyCompliant": the procedure addresses the clause but with gaps.
- "NonCompliant": the procedure contradicts or omits the clause entirely.
- "NotApplicable": the clause does not govern this procedure.

Respond with JSON only, no prose, in the form:
{"status": "<status>", "rationale": "<specific reasons citing both texts>", "suggested_adjustment": "<procedure change, or empty if Compliant or NotApplicable>"}`

const judgeRepairPrompt = `Your previous response was not valid JSON or used a
status outside the allowed vocabulary. Respond again with only the JSON object
in the required form.`

func judgeUserPrompt(sectionHeading, sectionText, clauseRef, clauseText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SOP section: %s\n%s\n\n", sectionHeading, sectionText)
	if clauseRef != "" {
		fmt.Fprintf(&b, "Regulatory clause (%s):\n%s\n", clauseRef, clauseText)
	} else {
		fmt.Fprintf(&b, "Regulatory clause:\n%s\n", clauseText)
	}
	return b.String()
}
