package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ahoge-moe/Shiden/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRunner_Rules(t *testing.T) {
	f := NewFakeRunner().
		OnOutput("rclone", "lsf", "ep01.mkv\n").
		OnFail("ffmpeg", "overlay")

	out, err := f.Run(context.Background(), "rclone", "lsf", "remote:a/ep01.mkv")
	require.NoError(t, err)
	assert.Equal(t, "ep01.mkv\n", string(out))

	_, err = f.Run(context.Background(), "ffmpeg", "-filter_complex", "[0:v][1:0]overlay[v]")
	var exitErr *process.ExitError
	assert.ErrorAs(t, err, &exitErr)

	out, err = f.Run(context.Background(), "ffmpeg", "-c", "copy")
	require.NoError(t, err)
	assert.Empty(t, out)

	assert.Len(t, f.Calls(), 3)
	assert.Len(t, f.CallsTo("ffmpeg"), 2)
}

func TestFakeRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFakeRunner().Run(ctx, "ffmpeg")
	assert.ErrorIs(t, err, process.ErrKilled)
}

func TestCall_HasArgs(t *testing.T) {
	c := Call{Name: "ffmpeg", Args: []string{"-map", "0:1", "-c:v", "copy"}}
	assert.True(t, c.HasArgs("-map", "0:1"))
	assert.False(t, c.HasArgs("-map", "0:2"))
	assert.True(t, c.HasArgs())
	assert.Equal(t, "ffmpeg -map 0:1 -c:v copy", c.String())
}

func TestProbeJSON(t *testing.T) {
	var parsed struct {
		Streams []struct {
			Index     int    `json:"index"`
			CodecType string `json:"codec_type"`
			Channels  int    `json:"channels"`
		} `json:"streams"`
	}
	require.NoError(t, json.Unmarshal([]byte(ProbeJSON(StreamsTextSub...)), &parsed))
	require.Len(t, parsed.Streams, 3)
	assert.Equal(t, "audio", parsed.Streams[1].CodecType)
	assert.Equal(t, 2, parsed.Streams[1].Channels)
}
