package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_CopyAndBlock(t *testing.T) {
	result, err := Run(loadTestScenario(t, "copy_and_block"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 4)
	first := result.Trace[0]
	assert.Equal(t, "copied", first.Status)
	assert.Equal(t, "matched", first.Resolution)
	assert.Equal(t, []string{"height=>ht"}, first.Blocked)
	assert.Equal(t, "create", result.Trace[3].Resolution)
}

func TestRun_Failures(t *testing.T) {
	result, err := Run(loadTestScenario(t, "failures"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	failed := result.Trace[0]
	assert.Equal(t, "failed", failed.Status)
	assert.Contains(t, failed.Error, "AMBIGUOUS_LOOKUP")
	assert.Equal(t, "config_error", result.Trace[1].Status)
	assert.Len(t, result.Trace[1].Errors, 1)
}

func TestRun_UnexpectedStatus(t *testing.T) {
	scenario := loadTestScenario(t, "copy_and_block")
	scenario.Saves[0].Expect = []string{"skipped"}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "save #1: expected statuses [skipped], got [copied]")
}

func TestRun_FailedAssertion(t *testing.T) {
	scenario := loadTestScenario(t, "copy_and_block")
	want := "1"
	scenario.Assertions = []Assertion{
		{Type: AssertValue, Project: "30", Record: "1", Event: "intake_arm_1", Field: "wt", Equals: &want},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `expected "1", got "72"`)
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("unknown event", func(t *testing.T) {
		scenario := loadTestScenario(t, "copy_and_block")
		scenario.Setup[0].Event = "nowhere_arm_1"

		_, err := Run(scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to execute setup")
	})

	t.Run("unknown field", func(t *testing.T) {
		scenario := loadTestScenario(t, "copy_and_block")
		scenario.Setup[0].Values = map[string]string{"nope": "1"}

		_, err := Run(scenario)
		require.Error(t, err)
	})

	t.Run("unknown source project", func(t *testing.T) {
		scenario := loadTestScenario(t, "copy_and_block")
		scenario.Source = "77"

		_, err := Run(scenario)
		require.Error(t, err)
	})
}
