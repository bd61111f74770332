package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rand/memento/internal/memory/casebank"
)

func TestParseCaseLabel(t *testing.T) {
	label, err := parseCaseLabel("positive")
	require.NoError(t, err)
	assert.Equal(t, casebank.LabelPositive, label)

	label, err = parseCaseLabel("Negative")
	require.NoError(t, err)
	assert.Equal(t, casebank.LabelNegative, label)

	_, err = parseCaseLabel("unknown")
	require.Error(t, err)

	_, err = parseCaseLabel("maybe")
	require.Error(t, err)
}
