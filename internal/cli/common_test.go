package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	PrintVersion(&buf, "amarui", true)

	var out struct {
		Tool        string      `json:"tool"`
		VersionInfo VersionInfo `json:"version_info"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "amarui", out.Tool)
	assert.Equal(t, Version, out.VersionInfo.Version)
}

func TestPrintVersionText(t *testing.T) {
	var buf bytes.Buffer
	PrintVersion(&buf, "amarui", false)
	assert.Contains(t, buf.String(), "amarui v"+Version+"\n")
	assert.NotContains(t, buf.String(), "Commit:")
}

func TestStatusLines(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	s := Status(&buf)
	s.Info("booting %s", "amarui")
	s.Warn("slow")
	s.Error("failed: %d", 3)
	s.Success("done")

	assert.Equal(t, "[INFO] booting amarui\n[WARN] slow\n[ERROR] failed: 3\n[OK] done\n", buf.String())
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf, "amarui", "interrupt core emulator", []FlagInfo{
		{Name: "config", Usage: "boot configuration file"},
		{Name: "log-level", Usage: "console log level", Default: "info"},
	})
	out := buf.String()
	assert.Contains(t, out, "amarui - interrupt core emulator")
	assert.Contains(t, out, "-config")
	assert.Contains(t, out, "Default: info")
}
