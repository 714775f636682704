package testutil

import (
	"encoding/json"

	"github.com/ahoge-moe/Shiden/internal/models"
)

// SampleStream describes one stream for ProbeJSON.
type SampleStream struct {
	Index     int
	CodecType string
	CodecName string
	Channels  int
}

// Common stream sets.
var (
	// StreamsTextSub is one video, one stereo audio and one ASS subtitle.
	StreamsTextSub = []SampleStream{
		{Index: 0, CodecType: "video", CodecName: "h264"},
		{Index: 1, CodecType: "audio", CodecName: "aac", Channels: 2},
		{Index: 2, CodecType: "subtitle", CodecName: "ass"},
	}

	// StreamsNoSub is one video and one 5.1 audio stream.
	StreamsNoSub = []SampleStream{
		{Index: 0, CodecType: "video", CodecName: "hevc"},
		{Index: 1, CodecType: "audio", CodecName: "eac3", Channels: 6},
	}

	// StreamsSubOnly is a standalone subtitle file.
	StreamsSubOnly = []SampleStream{
		{Index: 0, CodecType: "subtitle", CodecName: "ass"},
	}
)

// ProbeJSON renders streams as ffprobe -print_format json output.
func ProbeJSON(streams ...SampleStream) string {
	type stream struct {
		Index     int    `json:"index"`
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Channels  int    `json:"channels,omitempty"`
	}
	out := struct {
		Streams []stream `json:"streams"`
	}{Streams: make([]stream, 0, len(streams))}
	for _, s := range streams {
		out.Streams = append(out.Streams, stream(s))
	}
	data, _ := json.Marshal(out)
	return string(data)
}

// SampleJob returns a minimal valid job for inputFile.
func SampleJob(inputFile, outputFolder string) models.Job {
	return models.Job{InputFile: inputFile, OutputFolder: outputFolder}
}
