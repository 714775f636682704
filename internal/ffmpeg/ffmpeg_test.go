package ffmpeg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahoge-moe/Shiden/internal/config"
	"github.com/ahoge-moe/Shiden/internal/process"
	"github.com/ahoge-moe/Shiden/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilder_Build(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		Input("temp_input.mkv").
		Map("0:v").
		VideoCodec("copy").
		Map("0:1").
		AudioCodec("aac").
		AudioBitrate("320k").
		Output("prepped_input.mkv").
		Build()

	assert.Equal(t, "ffmpeg", cmd.Binary)
	assert.Equal(t, []string{
		"-loglevel", "error",
		"-i", "temp_input.mkv",
		"-map", "0:v", "-c:v", "copy",
		"-map", "0:1", "-c:a", "aac", "-b:a", "320k",
		"prepped_input.mkv",
	}, cmd.Args)
	assert.Equal(t, "prepped_input.mkv", cmd.Output)
}

func TestCommandBuilder_MultipleInputs(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		Overwrite().
		Input("prepped.mkv").
		InputOffset(1.5).
		Input("subs.mkv").
		FilterComplex("[0:v][1:3]overlay[v]").
		Map("[v]").
		Map("0:a").
		Strict("-2").
		MaxDuration(time.Minute).
		Output("out.mp4").
		Build()

	assert.Equal(t, []string{
		"-loglevel", "error",
		"-y",
		"-i", "prepped.mkv",
		"-itsoffset", "1.5", "-i", "subs.mkv",
		"-filter_complex", "[0:v][1:3]overlay[v]",
		"-map", "[v]", "-map", "0:a",
		"-strict", "-2",
		"-t", "60",
		"out.mp4",
	}, cmd.Args)
}

func TestCommandBuilder_VideoFilters(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		LogLevel("warning").
		HideBanner().
		Input("in.mkv").
		VideoFilter("scale=1280:-2").
		VideoFilter("subtitles=sub.ass").
		Output("out.mp4").
		Build()

	assert.Equal(t, "ffmpeg -loglevel warning -hide_banner -i in.mkv -vf scale=1280:-2,subtitles=sub.ass out.mp4", cmd.String())
}

func TestCommand_Run(t *testing.T) {
	runner := testutil.NewFakeRunner()
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").Input("a").Codec("copy").Output("b").Build()

	require.NoError(t, cmd.Run(context.Background(), runner))
	calls := runner.CallsTo("/usr/bin/ffmpeg")
	require.Len(t, calls, 1)
	assert.True(t, calls[0].HasArgs("-c", "copy", "b"))
}

func TestProber_Probe(t *testing.T) {
	runner := testutil.NewFakeRunner().
		OnOutput("ffprobe", "-show_streams", testutil.ProbeJSON(testutil.StreamsTextSub...))

	result, err := NewProber("ffprobe", runner).Probe(context.Background(), "temp_input.mkv")
	require.NoError(t, err)
	require.Len(t, result.Streams, 3)
	assert.Equal(t, CodecTypeAudio, result.Streams[1].CodecType)
	assert.Equal(t, 2, result.Streams[1].Channels)
	assert.Len(t, result.StreamsByType(CodecTypeSubtitle), 1)

	call := runner.Calls()[0]
	assert.True(t, call.HasArgs("-print_format", "json"))
	assert.True(t, call.HasArgs("-i", "temp_input.mkv"))
}

func TestProber_InvalidOutput(t *testing.T) {
	runner := testutil.NewFakeRunner().OnOutput("ffprobe", "", "not json")

	_, err := NewProber("ffprobe", runner).Probe(context.Background(), "x.mkv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing ffprobe output")
}

func TestProber_Killed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProber("ffprobe", testutil.NewFakeRunner()).Probe(ctx, "x.mkv")
	assert.ErrorIs(t, err, process.ErrKilled)
}

func TestProber_TimeoutIsNotKill(t *testing.T) {
	runner := testutil.NewFakeRunner().On("ffprobe", "", func(ctx context.Context, c testutil.Call) ([]byte, error) {
		<-ctx.Done()
		return nil, &process.KilledError{Name: c.Name, Err: ctx.Err()}
	})

	_, err := NewProber("ffprobe", runner).WithTimeout(10*time.Millisecond).Probe(context.Background(), "x.mkv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe timeout")
	assert.False(t, errors.Is(err, process.ErrKilled))
}

func TestProbeStream_Language(t *testing.T) {
	s := ProbeStream{Tags: map[string]string{"language": "jpn"}}
	assert.Equal(t, "jpn", s.Language())
	assert.Empty(t, ProbeStream{}.Language())
}

func TestResolveBinaries_Configured(t *testing.T) {
	_, err := ResolveBinaries(config.FFmpegConfig{BinaryPath: "/nonexistent/ffmpeg"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locating ffmpeg")
}

func TestVersion(t *testing.T) {
	runner := testutil.NewFakeRunner().OnOutput("ffmpeg", "-version", "ffmpeg version 7.1 Copyright\nbuilt with gcc\n")

	v, err := Version(context.Background(), runner, "ffmpeg")
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg version 7.1 Copyright", v)
}
