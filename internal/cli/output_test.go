package cli

import (
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and
// returns everything written
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	require.NoError(t, w.Close())

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestWriteSuccessJSONEnvelope(t *testing.T) {
	writer := NewOutputWriter(OutputFormatJSON, false, false)
	writer.AddWarning("SYNC_PARTIAL", "2 of 5 operations failed", "warning")

	raw := captureStdout(t, func() {
		require.NoError(t, writer.WriteSuccess("sync.now", map[string]string{"state": "done"}))
	})

	var envelope CLIOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &envelope))
	assert.Equal(t, SchemaVersion, envelope.SchemaVersion)
	assert.NotEmpty(t, envelope.TraceID)
	assert.Equal(t, "sync.now", envelope.Command)
	assert.Empty(t, envelope.Errors)
	require.Len(t, envelope.Warnings, 1)
	assert.Equal(t, "SYNC_PARTIAL", envelope.Warnings[0].Code)
}

func TestWriteErrorJSONEnvelope(t *testing.T) {
	writer := NewOutputWriter(OutputFormatJSON, false, false)

	raw := captureStdout(t, func() {
		require.NoError(t, writer.WriteError("upload", CLIError{Code: "UPLOAD_FAILED", Message: "boom"}))
	})

	var envelope CLIOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &envelope))
	assert.Nil(t, envelope.Data)
	require.Len(t, envelope.Errors, 1)
	assert.Equal(t, "UPLOAD_FAILED", envelope.Errors[0].Code)
}

func TestWriteTableFallsBackToJSONForUnknownTypes(t *testing.T) {
	writer := NewOutputWriter(OutputFormatTable, false, false)

	raw := captureStdout(t, func() {
		require.NoError(t, writer.WriteSuccess("auth.status", map[string]string{"authenticated": "true"}))
	})

	var envelope CLIOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &envelope))
	assert.Equal(t, "auth.status", envelope.Command)
}

func TestValidateGlobalFlags(t *testing.T) {
	t.Cleanup(func() {
		globalFlags = GlobalFlags{OutputFormat: OutputFormatTable}
	})

	globalFlags = GlobalFlags{OutputFormat: OutputFormatTable}
	require.NoError(t, validateGlobalFlags())

	globalFlags = GlobalFlags{OutputFormat: "yaml"}
	assert.Error(t, validateGlobalFlags())

	// --json overrides whatever --output said
	globalFlags = GlobalFlags{OutputFormat: OutputFormatTable, JSON: true}
	require.NoError(t, validateGlobalFlags())
	assert.Equal(t, OutputFormatJSON, globalFlags.OutputFormat)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly-10", truncate("exactly-10", 10))
	assert.Equal(t, "long st...", truncate("long string here", 10))
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.in), "formatSize(%d)", tt.in)
	}
}
