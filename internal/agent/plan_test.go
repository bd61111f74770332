package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	plan, cleaned, err := parsePlan("```json\n{\"plan\":[{\"id\":2,\"description\":\"fetch page\"}]}\n```")
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, 2, plan.Tasks[0].ID)
	assert.Equal(t, "fetch page", plan.Tasks[0].Description)
	assert.Equal(t, `{"plan":[{"id":2,"description":"fetch page"}]}`, cleaned)
}

func TestParsePlanRejectsInvalidJSON(t *testing.T) {
	_, _, err := parsePlan(`{"plan": }`)
	require.Error(t, err)
}

func TestParsePlanRejectsMissingPlanField(t *testing.T) {
	_, _, err := parsePlan(`{"steps":[{"id":1,"description":"x"}]}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan")
}

func TestParsePlanEmptyPlanIsValid(t *testing.T) {
	plan, _, err := parsePlan(`{"plan":[]}`)
	require.NoError(t, err)
	assert.Empty(t, plan.Tasks)
}
