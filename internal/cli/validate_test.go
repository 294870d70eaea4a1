package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tileconverge/internal/config"
)

func TestValidateValidConfig(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())

	out, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "text"}), "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Configuration valid (1 data sources, 1 styles,")
}

func TestValidateValidConfigJSON(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())

	out, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "json"}), "--config", cfgPath)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Sources)
	assert.Equal(t, 1, resp.Data.Styles)
	assert.Positive(t, resp.Data.Resources)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "fleet.yaml")
	src := `srv_root: relative
data:
  - name: land
    url: ftp://tiles.example/land.tgz
styles:
  - name: default
    tile_directories:
      - name: /srv/stores/a
        min_zoom: 5
        max_zoom: 2
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(src), 0o644))

	out, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "text"}), "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 3 error(s)")

	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, config.ErrNotAbsolute+": srv_root:")
	assert.Contains(t, out, config.ErrInvalidURL+": data[0].url:")
	assert.Contains(t, out, config.ErrZoomRange+": styles[0].tile_directories[0]:")
}

func TestValidateInvalidConfigJSON(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "fleet.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("srv_root: relative\n"), 0o644))

	out, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "json"}), "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, "srv_root", resp.Data.Errors[0].Field)
	require.NotNil(t, resp.Error)
	assert.Equal(t, config.ErrNotAbsolute, resp.Error.Code)
}

func TestValidateSchemaErrorHasLine(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "fleet.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("srv_root: /srv\nmax_notification_iterations: many\n"), 0o644))

	out, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "text"}), "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, config.ErrSchema)
}

func TestValidateMissingConfig(t *testing.T) {
	out, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "text"}), "--config", "/nonexistent/fleet.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
}

func TestValidateUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "fleet.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("srv_root = '/srv'\n"), 0o644))

	out, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "text"}), "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeConfig+"]")
}

func TestValidateRequiresConfigFlag(t *testing.T) {
	_, err := runCommand(t, NewValidateCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "config" not set`)
}
