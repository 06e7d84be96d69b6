package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/secho/egnyte-client-linux/internal/api"
	"github.com/secho/egnyte-client-linux/internal/config"
	"github.com/secho/egnyte-client-linux/internal/sync"
)

// SchemaVersion identifies the JSON output envelope shape
const SchemaVersion = "1.0"

// CLIError is a structured error in JSON output
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CLIWarning is a non-fatal notice in JSON output
type CLIWarning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// CLIOutput is the JSON envelope every command emits
type CLIOutput struct {
	SchemaVersion string       `json:"schemaVersion"`
	TraceID       string       `json:"traceId"`
	Command       string       `json:"command"`
	Data          interface{}  `json:"data"`
	Warnings      []CLIWarning `json:"warnings"`
	Errors        []CLIError   `json:"errors"`
}

// OutputWriter handles CLI output formatting
type OutputWriter struct {
	format   OutputFormat
	quiet    bool
	verbose  bool
	warnings []CLIWarning
}

// NewOutputWriter creates a new output writer
func NewOutputWriter(format OutputFormat, quiet, verbose bool) *OutputWriter {
	return &OutputWriter{
		format:   format,
		quiet:    quiet,
		verbose:  verbose,
		warnings: []CLIWarning{},
	}
}

// AddWarning adds a warning to the output
func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

// WriteSuccess writes a successful result
func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	output := CLIOutput{
		SchemaVersion: SchemaVersion,
		TraceID:       uuid.New().String(),
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        []CLIError{},
	}

	if w.format == OutputFormatJSON {
		return w.writeJSON(output)
	}
	return w.writeTable(command, data)
}

// WriteError writes an error result
func (w *OutputWriter) WriteError(command string, cliErr CLIError) error {
	output := CLIOutput{
		SchemaVersion: SchemaVersion,
		TraceID:       uuid.New().String(),
		Command:       command,
		Data:          nil,
		Warnings:      w.warnings,
		Errors:        []CLIError{cliErr},
	}
	return w.writeJSON(output)
}

func (w *OutputWriter) writeJSON(output CLIOutput) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (w *OutputWriter) writeTable(command string, data interface{}) error {
	switch v := data.(type) {
	case []api.Metadata:
		return w.writeMetadataTable(v)
	case api.Metadata:
		return w.writeMetadataTable([]api.Metadata{v})
	case []sync.Result:
		return w.writeResultTable(v)
	case []config.SyncEntry:
		return w.writeSyncEntryTable(v)
	default:
		// Fallback to JSON for unknown types
		return w.writeJSON(CLIOutput{
			SchemaVersion: SchemaVersion,
			TraceID:       uuid.New().String(),
			Command:       command,
			Data:          data,
			Warnings:      w.warnings,
			Errors:        []CLIError{},
		})
	}
}

func (w *OutputWriter) newTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func (w *OutputWriter) writeMetadataTable(items []api.Metadata) error {
	if len(items) == 0 {
		if !w.quiet {
			fmt.Fprintln(os.Stdout, "No items found")
		}
		return nil
	}

	table := w.newTable([]string{"Name", "Type", "Size", "Modified"})
	for _, item := range items {
		kind := "file"
		size := formatSize(item.Size)
		if item.IsFolder {
			kind = "folder"
			size = "-"
		}
		table.Append([]string{
			truncate(item.Name, 50),
			kind,
			size,
			item.ModifiedTime,
		})
	}
	table.Render()
	return nil
}

func (w *OutputWriter) writeResultTable(results []sync.Result) error {
	if len(results) == 0 {
		if !w.quiet {
			fmt.Fprintln(os.Stdout, "Nothing to sync")
		}
		return nil
	}

	table := w.newTable([]string{"Action", "Remote", "Status"})
	for _, res := range results {
		status := "ok"
		if !res.Success {
			status = "FAILED: " + truncate(res.Error, 40)
		}
		table.Append([]string{string(res.Action), truncate(res.RemotePath, 50), status})
	}
	table.Render()
	return nil
}

func (w *OutputWriter) writeSyncEntryTable(entries []config.SyncEntry) error {
	if len(entries) == 0 {
		if !w.quiet {
			fmt.Fprintln(os.Stdout, "No sync paths configured")
		}
		return nil
	}

	table := w.newTable([]string{"Local", "Remote", "Conflict"})
	for _, entry := range entries {
		conflict := string(entry.Policy.ConflictPolicy)
		if conflict == "" {
			conflict = "(default)"
		}
		table.Append([]string{
			truncate(entry.LocalRoot, 40),
			truncate(entry.RemoteRoot, 40),
			conflict,
		})
	}
	table.Render()
	return nil
}

// Log writes to stderr if not quiet
func (w *OutputWriter) Log(format string, args ...interface{}) {
	if !w.quiet {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// Verbose writes to stderr if verbose is enabled
func (w *OutputWriter) Verbose(format string, args ...interface{}) {
	if w.verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
