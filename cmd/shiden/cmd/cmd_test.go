package cmd

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/ahoge-moe/Shiden/internal/version"
)

func TestDumpDefaults(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, dumpDefaults(&buf))

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &parsed))

	server, ok := parsed["server"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 8080, server["port"])
	assert.Equal(t, "30s", server["read_timeout"])

	history, ok := parsed["history"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "@daily", history["prune_schedule"])
	assert.Equal(t, "720h0m0s", history["retention"])
}

func TestVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionJSON = true
	t.Cleanup(func() { versionJSON = false })

	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	var info version.Info
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestDescribeRun(t *testing.T) {
	ok := &models.JobRun{
		Status:     models.JobRunSucceeded,
		OutputName: "ep1.mp4",
		OutputSize: 2048,
		Strategy:   models.StrategyText,
		DurationMs: int64(90 * time.Second / time.Millisecond),
	}
	assert.Equal(t, "ep1.mp4 (2.0 KiB, text, 1m30s)", describeRun(ok))

	failed := &models.JobRun{Status: models.JobRunFailed, ErrorCode: models.CodeSourceNotFound, ErrorName: "SourceNotFound"}
	assert.Equal(t, "600 SourceNotFound", describeRun(failed))

	assert.Equal(t, "-", describeRun(&models.JobRun{Status: models.JobRunRunning}))
}
