// Package judge scores predicted answers against ground truth with an
// LLM grader. A grading failure is never fatal: the verdict degrades to
// incorrect with the cause in the rationale so batch runs keep going.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/rand/memento/internal/llm"
)

const maxJudgeTokens = 300

const promptTemplate = `You will be given a question and its ground truth answer list where each item can be a ground truth answer. Provided a pred_answer, you need to judge if the pred_answer correctly answers the question based on the ground truth answer list.
You should first give your rationale for the judgement, and then give your judgement result (i.e., correct or incorrect).

Here is the criteria for the judgement:
1. The pred_answer doesn't need to be exactly the same as any of the ground truth answers, but should be semantically same for the question.
2. Each item in the ground truth answer list can be viewed as a ground truth answer for the question, and the pred_answer should be semantically same to at least one of them.

question: %s
ground truth answers: %s
pred_answer: %s

The output should in the following json format:


{
  "rationale": "...",
  "judgement": "correct" | "incorrect"
}
`

// Verdict is the grading outcome for a single prediction.
type Verdict struct {
	Correct   bool
	Judgement string
	Rationale string
}

type Judge struct {
	backend llm.Backend
}

func New(backend llm.Backend) *Judge {
	return &Judge{backend: backend}
}

var (
	fenceRe    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	jsonObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// stripFences removes a surrounding markdown code fence, or failing that
// extracts the outermost JSON object so a judgement wrapped in prose
// still parses.
func stripFences(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	text = strings.TrimSpace(text)
	if m := jsonObject.FindString(text); m != "" {
		return m
	}
	return text
}

// Evaluate grades pred against the ground truth list. Any backend or
// parse failure yields an incorrect verdict, never an error.
func (j *Judge) Evaluate(ctx context.Context, question string, groundTruth []string, pred string) Verdict {
	gt, err := json.Marshal(groundTruth)
	if err != nil {
		return failed(err)
	}
	prompt := fmt.Sprintf(promptTemplate, question, string(gt), pred)

	resp, err := j.backend.Chat(ctx, []llm.Message{llm.UserMessage(prompt)}, nil, maxJudgeTokens)
	if err != nil {
		slog.Warn("judge call failed", "error", err)
		return failed(err)
	}

	var out struct {
		Rationale string `json:"rationale"`
		Judgement string `json:"judgement"`
	}
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &out); err != nil {
		slog.Warn("judge returned unparseable output", "error", err)
		return failed(err)
	}

	judgement := strings.ToLower(strings.TrimSpace(out.Judgement))
	if judgement != "correct" {
		judgement = "incorrect"
	}
	return Verdict{
		Correct:   judgement == "correct",
		Judgement: judgement,
		Rationale: out.Rationale,
	}
}

func failed(err error) Verdict {
	return Verdict{
		Correct:   false,
		Judgement: "incorrect",
		Rationale: fmt.Sprintf("judge failed: %v", err),
	}
}
