package main

import (
	"testing"

	"github.com/entrhq/convoexport/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	applyOverrides(cfg, &CLIConfig{
		Worklist:      "links.csv",
		Column:        "link",
		CDPEndpoint:   "http://10.0.0.5:9222",
		BatchSize:     25,
		Diagnostics:   "never",
		InstallDriver: true,
	})

	assert.Equal(t, "links.csv", cfg.Worklist.Path)
	assert.Equal(t, "convos", cfg.Worklist.Sheet, "unset flags keep the loaded value")
	assert.Equal(t, "link", cfg.Worklist.Column)
	assert.Equal(t, "http://10.0.0.5:9222", cfg.Browser.CDPEndpoint)
	assert.Equal(t, 25, cfg.Output.BatchSize)
	assert.Equal(t, config.DiagnosticsNever, cfg.Output.Diagnostics)
	assert.True(t, cfg.Browser.InstallDriver)
	require.NoError(t, cfg.Validate())
}

func TestApplyOverridesInvalidPolicy(t *testing.T) {
	cfg := config.DefaultConfig()
	applyOverrides(cfg, &CLIConfig{Diagnostics: "sometimes"})
	assert.Error(t, cfg.Validate())
}
