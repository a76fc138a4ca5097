package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/fatih/color"
)

// Version information for all CLI tools
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-17"
	CommitSHA = "unknown" // Will be set during build
)

// VersionInfo contains version and build information
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	CommitSHA string `json:"commit_sha"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Arch      string `json:"arch"`
}

// GetVersionInfo returns structured version information
func GetVersionInfo() *VersionInfo {
	return &VersionInfo{
		Version:   Version,
		BuildDate: BuildDate,
		CommitSHA: CommitSHA,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// PrintVersion prints version information in a consistent format
func PrintVersion(w io.Writer, toolName string, jsonOutput bool) {
	info := GetVersionInfo()

	if jsonOutput {
		data, err := json.MarshalIndent(map[string]interface{}{
			"tool":         toolName,
			"version_info": info,
		}, "", "  ")
		if err == nil {
			fmt.Fprintln(w, string(data))
			return
		}
		// Fallback to plain text if JSON marshaling fails
		fmt.Fprintf(os.Stderr, "Error: Failed to marshal version info to JSON: %v\n", err)
	}

	fmt.Fprintf(w, "%s v%s\n", toolName, info.Version)
	fmt.Fprintf(w, "Build Date: %s\n", info.BuildDate)
	if info.CommitSHA != "unknown" && info.CommitSHA != "" {
		fmt.Fprintf(w, "Commit: %s\n", info.CommitSHA)
	}
	fmt.Fprintf(w, "Go Version: %s\n", info.GoVersion)
	fmt.Fprintf(w, "Platform: %s/%s\n", info.Platform, info.Arch)
}

// ExitWithError prints an error message and exits with code 1
func ExitWithError(format string, args ...interface{}) {
	Status(os.Stderr).Error(format, args...)
	os.Exit(1)
}

// ExitWithCode exits with the specified code and optional message
func ExitWithCode(code int, format string, args ...interface{}) {
	if format != "" {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(code)
}

// StatusWriter prints the host-side status lines of a tool, colored when
// the output is a terminal.
type StatusWriter struct {
	w       io.Writer
	info    *color.Color
	warn    *color.Color
	err     *color.Color
	success *color.Color
}

// Status returns a status writer over w.
func Status(w io.Writer) *StatusWriter {
	return &StatusWriter{
		w:       w,
		info:    color.New(color.FgCyan),
		warn:    color.New(color.FgYellow),
		err:     color.New(color.FgRed, color.Bold),
		success: color.New(color.FgGreen),
	}
}

func (s *StatusWriter) line(c *color.Color, tag, format string, args ...interface{}) {
	c.Fprintf(s.w, "[%s]", tag)
	fmt.Fprintf(s.w, " %s\n", fmt.Sprintf(format, args...))
}

// Info prints an informational status line
func (s *StatusWriter) Info(format string, args ...interface{}) {
	s.line(s.info, "INFO", format, args...)
}

// Warn prints a warning status line
func (s *StatusWriter) Warn(format string, args ...interface{}) {
	s.line(s.warn, "WARN", format, args...)
}

// Error prints an error status line
func (s *StatusWriter) Error(format string, args ...interface{}) {
	s.line(s.err, "ERROR", format, args...)
}

// Success prints a success status line
func (s *StatusWriter) Success(format string, args ...interface{}) {
	s.line(s.success, "OK", format, args...)
}

// FlagInfo represents information about a command flag
type FlagInfo struct {
	Name    string
	Usage   string
	Default string
}

// PrintUsage prints a standardized usage message
func PrintUsage(w io.Writer, tool, description string, flags []FlagInfo) {
	fmt.Fprintf(w, "%s - %s\n\n", tool, description)
	fmt.Fprintf(w, "USAGE:\n")
	fmt.Fprintf(w, "    %s [OPTIONS]\n\n", tool)

	if len(flags) > 0 {
		fmt.Fprintf(w, "OPTIONS:\n")
		for _, f := range flags {
			fmt.Fprintf(w, "%-24s %s\n", "    -"+f.Name, f.Usage)
			if f.Default != "" {
				fmt.Fprintf(w, "%-24s Default: %s\n", "", f.Default)
			}
		}
		fmt.Fprintf(w, "\n")
	}
}
