package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrevorS/mdevents"
)

const qlabYAML = `
dimensions:
  - {name: Q_lab_x, units: Angstrom^-1, min: -10, max: 10}
  - {name: Q_lab_y, units: Angstrom^-1, min: -10, max: 10}
  - {name: Q_lab_z, units: Angstrom^-1, min: -10, max: 10, num_bins: 50}
controller:
  split_into: 4
  split_threshold: 800
  max_depth: 12
ingest:
  workers: 3
  event_type: full
log:
  level: debug
  json: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mdbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, qlabYAML))
	require.NoError(t, err)

	require.Len(t, cfg.Dimensions, 3)
	assert.Equal(t, "Q_lab_z", cfg.Dimensions[2].Name)
	assert.Equal(t, 50, cfg.Dimensions[2].NumBins)
	assert.Equal(t, uint32(4), cfg.Controller.SplitInto)
	assert.Equal(t, uint64(800), cfg.Controller.SplitThreshold)
	assert.Equal(t, uint32(12), cfg.Controller.MaxDepth)
	assert.Equal(t, 3, cfg.Ingest.Workers)
	assert.Equal(t, "full", cfg.Ingest.EventType)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)

	// Unset fields keep their defaults.
	assert.Equal(t, mdevents.DefaultBatchSize, cfg.Ingest.BatchSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MDBOX_SPLIT_INTO", "2")
	t.Setenv("MDBOX_MAX_DEPTH", "3")
	t.Setenv("MDBOX_EVENT_TYPE", "lean")
	t.Setenv("MDBOX_AUTO_REFRESH", "true")
	t.Setenv("MDBOX_STORE_PATH", "/tmp/boxes")

	cfg, err := Load(writeConfig(t, qlabYAML))
	require.NoError(t, err)

	assert.Equal(t, uint32(2), cfg.Controller.SplitInto)
	assert.Equal(t, uint32(3), cfg.Controller.MaxDepth)
	assert.Equal(t, "lean", cfg.Ingest.EventType)
	assert.True(t, cfg.Ingest.AutoRefresh)
	assert.Equal(t, "/tmp/boxes", cfg.Store.Path)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("MDBOX_SPLIT_THRESHOLD", "lots")

	_, err := Load(writeConfig(t, qlabYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MDBOX_SPLIT_THRESHOLD")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"inverted extent", "dimensions: [{name: x, min: 5, max: 1}]\n"},
		{"empty extent", "dimensions: [{name: x, min: 1, max: 1}]\n"},
		{"missing name", "dimensions: [{min: 0, max: 1}]\n"},
		{"duplicate names", "dimensions: [{name: x, min: 0, max: 1}, {name: x, min: 0, max: 1}]\n"},
		{"split into one", "dimensions: [{name: x, min: 0, max: 1}]\ncontroller: {split_into: 1}\n"},
		{"unknown event type", "dimensions: [{name: x, min: 0, max: 1}]\ningest: {event_type: weighted}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_NoDimensions(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err, "commands that only read the store need no dimensions")
	assert.Error(t, cfg.RequireDimensions())

	cfg, err = Load(writeConfig(t, "controller: {split_into: 5}\n"))
	require.NoError(t, err)
	assert.Error(t, cfg.RequireDimensions())

	cfg, err = Load(writeConfig(t, qlabYAML))
	require.NoError(t, err)
	assert.NoError(t, cfg.RequireDimensions())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestWorkspaceDimensions(t *testing.T) {
	cfg, err := Load(writeConfig(t, qlabYAML))
	require.NoError(t, err)

	dims := cfg.WorkspaceDimensions()
	require.Len(t, dims, 3)
	assert.Equal(t, mdevents.Dimension{Name: "Q_lab_x", Units: "Angstrom^-1", Min: -10, Max: 10}, dims[0])

	wcfg := cfg.WorkspaceConfig()
	assert.Equal(t, uint32(4), wcfg.SplitInto)
	assert.Equal(t, 3, wcfg.Workers)

	ws, err := mdevents.New[mdevents.LeanEvent](dims, wcfg)
	require.NoError(t, err)
	assert.Equal(t, 3, ws.NumDims())
}
