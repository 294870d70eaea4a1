package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"resources": 12}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Empty(t, resp.PassID)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeDatabase, "database is locked", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E005", resp.Error.Code)
	assert.Equal(t, "database is locked", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	details := map[string]string{"unit": "renderd.service"}
	require.NoError(t, formatter.Error(ErrCodeCapability, "dbus unavailable", details))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, map[string]any{"unit": "renderd.service"}, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("12 resources"))
	assert.Equal(t, "12 resources\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodePlan, "service[renderd.service] declared twice with different state", map[string]string{"k": "v"}))
	assert.Contains(t, buf.String(), "Error [E004]")
	assert.Contains(t, buf.String(), "declared twice")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error(ErrCodeConfig, "unsupported extension", map[string]string{"path": "fleet.toml"}))
	assert.Contains(t, buf.String(), "Error [E003]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Loaded %s", "fleet.cue")

			assert.Empty(t, out.String(), "verbose output must not corrupt JSON")
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "Loaded fleet.cue")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestOutputFormatter_GetErrWriterFallback(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Writer: buf}
	assert.Same(t, buf, formatter.GetErrWriter())

	errBuf := &bytes.Buffer{}
	formatter.ErrWriter = errBuf
	assert.Same(t, errBuf, formatter.GetErrWriter())
}

func TestExitError(t *testing.T) {
	base := errors.New("no such file")

	wrapped := WrapExitError(ExitCommandError, "config not found", base)
	assert.Equal(t, "config not found: no such file", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)

	plain := NewExitError(ExitFailure, "pass failed")
	assert.Equal(t, "pass failed", plain.Error())

	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("converge: %w", wrapped)))
	assert.Equal(t, ExitFailure, GetExitCode(plain))
	assert.Equal(t, ExitFailure, GetExitCode(base))
}

func TestCLIResponse_PassIDOmittedWhenEmpty(t *testing.T) {
	data, err := json.Marshal(CLIResponse{Status: "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	data, err = json.Marshal(CLIResponse{Status: "ok", PassID: "pass-0001"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","pass_id":"pass-0001"}`, string(data))
}
