package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fenceOpen  = regexp.MustCompile("^```[^\n]*\n")
	fenceClose = regexp.MustCompile("\n?```$")
	jsonObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// stripFences removes a surrounding markdown code fence, or failing that
// extracts the outermost JSON object from the text.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = fenceOpen.ReplaceAllString(text, "")
		text = fenceClose.ReplaceAllString(text, "")
		return strings.TrimSpace(text)
	}
	if m := jsonObject.FindString(text); m != "" {
		return m
	}
	return text
}

// parsePlan extracts and validates the planner's JSON plan. The returned
// string is the cleaned plan JSON that gets stored with the case.
func parsePlan(raw string) (*Plan, string, error) {
	cleaned := stripFences(raw)

	var plan Plan
	if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
		return nil, "", fmt.Errorf("invalid plan JSON: %w", err)
	}
	if plan.Tasks == nil {
		return nil, "", fmt.Errorf("missing plan field")
	}
	return &plan, cleaned, nil
}
