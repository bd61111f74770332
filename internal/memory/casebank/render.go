package casebank

import (
	"encoding/json"
	"fmt"
	"strings"
)

// planDoc is the JSON plan schema the planner emits.
type planDoc struct {
	Plan []planStep `json:"plan"`
}

type planStep struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// RenderCaseText renders a case the way the retriever sees it: a [CASE]
// section holding the stored query, then a [PLAN] section if a plan exists.
// This is the only rendering path, shared by pool loading and training
// export, so training and serving can never skew apart.
func RenderCaseText(query string, plan any) string {
	parts := []string{"[CASE]", query}
	if text, ok := planText(plan); ok {
		parts = append(parts, "[PLAN]", text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// planText renders a structured plan as a numbered step list and anything
// else verbatim. Returns false when there is no plan at all.
func planText(plan any) (string, bool) {
	switch p := plan.(type) {
	case nil:
		return "", false
	case string:
		if p == "" {
			return "", false
		}
		if pretty, ok := prettyPlan([]byte(p)); ok {
			return pretty, true
		}
		return p, true
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Sprintf("%v", p), true
		}
		if pretty, ok := prettyPlan(raw); ok {
			return pretty, true
		}
		return string(raw), true
	}
}

func prettyPlan(raw []byte) (string, bool) {
	var doc planDoc
	if err := json.Unmarshal(raw, &doc); err != nil || len(doc.Plan) == 0 {
		return "", false
	}
	lines := make([]string, 0, len(doc.Plan))
	for _, step := range doc.Plan {
		lines = append(lines, fmt.Sprintf("%d. %s", step.ID, step.Description))
	}
	return strings.Join(lines, "\n"), true
}

// BuildGuidance renders retrieved cases into the in-context-learning block
// appended to the planner prompt. Positive examples come first with their
// plans spelled out; negative examples are shown for contrast.
func BuildGuidance(cases []CaseMeta, maxPositive, maxNegative int) string {
	var positive, negative []CaseMeta
	for _, c := range cases {
		switch c.Label {
		case LabelNegative:
			negative = append(negative, c)
		default:
			// Unlabeled cases rank as positive; see package retrieval.
			positive = append(positive, c)
		}
	}
	if len(positive) == 0 && len(negative) == 0 {
		return ""
	}

	var sb strings.Builder
	if len(positive) > 0 {
		shown := min(len(positive), maxPositive)
		fmt.Fprintf(&sb, "Positive Examples - Showing %d of %d:\n", shown, len(positive))
		for i, c := range positive[:shown] {
			text, _ := planText(c.Plan)
			fmt.Fprintf(&sb, "Example %d:\nQuestion: %s\nPlan:\n%s\n\n", i+1, c.Query, text)
		}
	}
	if len(negative) > 0 {
		shown := min(len(negative), maxNegative)
		fmt.Fprintf(&sb, "Negative Examples - Showing %d of %d:\n", shown, len(negative))
		for i, c := range negative[:shown] {
			text, _ := planText(c.Plan)
			fmt.Fprintf(&sb, "Example %d:\nQuestion: %s\nPlan: %s\n\n", i+1, c.Query, text)
		}
	}
	sb.WriteString("Based on the above examples, provide a plan for the current task. " +
		"Follow what worked in the positive examples and avoid the patterns shown in negative ones.")
	return sb.String()
}
