package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios against its
// golden snapshot. Regenerate with: go test ./internal/harness -update
func TestScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.Len(t, scenarios, 5)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestMarshalSnapshot_TrailingNewline(t *testing.T) {
	data, err := MarshalSnapshot("x", NewResult())
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(string(data), "}\n"))
	assert.Contains(t, string(data), `"scenario_name": "x"`)
	assert.Contains(t, string(data), `"steps": []`)
}

func TestGoldenFilesMatchScenarioNames(t *testing.T) {
	goldens, err := filepath.Glob("testdata/golden/*.golden")
	require.NoError(t, err)

	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, s := range scenarios {
		names[s.Name] = true
	}
	for _, g := range goldens {
		name := strings.TrimSuffix(filepath.Base(g), ".golden")
		assert.True(t, names[name], "golden file %s has no scenario", g)
	}
}
