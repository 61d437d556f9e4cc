package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/icp-analyzer/internal/model"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"analyze", "serve", "jobs", "report", "export", "webhook"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "icp-analyzer", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"url", "mode", "days-back", "advanced", "webhook-url"} {
		flag := analyzeCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "analyze should have --%s flag", flagName)
	}

	modeFlag := analyzeCmd.Flags().Lookup("mode")
	require.NotNil(t, modeFlag)
	assert.Equal(t, "single", modeFlag.DefValue)
}

func TestFailedURLCount(t *testing.T) {
	// Cancelled jobs settle terminal with no result at all.
	cancelled := &model.Job{State: model.JobStateFailed, Marker: model.CancelledMarker}
	assert.Equal(t, 0, failedURLCount(cancelled))

	settled := &model.Job{
		State: model.JobStatePartiallyFailed,
		Result: &model.AnalysisResult{
			FailedURLs: []string{"https://b.example.com"},
		},
	}
	assert.Equal(t, 1, failedURLCount(settled))
}

func TestJobsCommand_HasSubcommands(t *testing.T) {
	cmds := jobsCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, name := range []string{"get", "deliveries"} {
		assert.True(t, names[name], "jobs should have subcommand %q", name)
	}
}

func TestReportCommand_Flags(t *testing.T) {
	flag := reportCmd.Flags().Lookup("format")
	require.NotNil(t, flag, "report should have --format flag")
	assert.Equal(t, "excel", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("platform")
	require.NotNil(t, flag, "export should have --platform flag")
	assert.Equal(t, "salesforce", flag.DefValue)
}
