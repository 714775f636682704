package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestDecodeJob_Valid(t *testing.T) {
	payload := `{
		"inputFile": "Premiered/Show/ep01.mkv",
		"outputFolder": "Premiered [Hardsub]/Show",
		"showName": "Show",
		"subtitleFile": "Subs/ep01.ass",
		"subtitleOffset": -1.5,
		"videoIndex": 0,
		"audioIndex": 2.0,
		"subIndex": 3,
		"fontStyle": "Roboto",
		"fontSize": 28
	}`

	job, err := DecodeJob([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, "Premiered/Show/ep01.mkv", job.InputFile)
	assert.Equal(t, "Premiered [Hardsub]/Show", job.OutputFolder)
	assert.Equal(t, "Show", job.ShowName)
	assert.Equal(t, "Subs/ep01.ass", job.SubtitleFile)
	require.NotNil(t, job.SubtitleOffset)
	assert.InDelta(t, -1.5, *job.SubtitleOffset, 0)
	require.NotNil(t, job.VideoIndex)
	assert.Equal(t, 0, *job.VideoIndex)
	assert.Equal(t, intPtr(2), job.AudioIndex)
	assert.Equal(t, intPtr(3), job.SubIndex)
	assert.Equal(t, "Roboto", job.FontStyle)
	assert.Equal(t, floatPtr(28), job.FontSize)
}

func TestDecodeJob_Minimal(t *testing.T) {
	job, err := DecodeJob([]byte(`{"inputFile":"a/b.mkv","outputFolder":"c"}`))
	require.NoError(t, err)
	assert.Nil(t, job.VideoIndex)
	assert.Nil(t, job.SubtitleOffset)
	assert.Empty(t, job.ShowName)
}

func TestDecodeJob_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		message string
	}{
		{"malformed json", `{"inputFile":`, MsgMalformedJSON},
		{"array payload", `[1,2]`, MsgMalformedJSON},
		{"null payload", `null`, MsgMalformedJSON},
		{"missing outputFolder", `{"inputFile":"a.mkv"}`, MsgMissingRequiredKey},
		{"missing inputFile", `{"outputFolder":"out"}`, MsgMissingRequiredKey},
		{"unknown key", `{"inputFile":"a","outputFolder":"b","extra":1}`, MsgInvalidSchema},
		{"number as string", `{"inputFile":"a","outputFolder":"b","fontSize":"36"}`, MsgInvalidSchema},
		{"string as number", `{"inputFile":1,"outputFolder":"b"}`, MsgInvalidSchema},
		{"null value", `{"inputFile":"a","outputFolder":null}`, MsgInvalidSchema},
		{"fractional index", `{"inputFile":"a","outputFolder":"b","audioIndex":1.5}`, MsgInvalidSchema},
		{"negative index", `{"inputFile":"a","outputFolder":"b","subIndex":-1}`, MsgInvalidSchema},
		{"boolean number", `{"inputFile":"a","outputFolder":"b","subtitleOffset":true}`, MsgInvalidSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJob([]byte(tt.payload))
			require.Error(t, err)

			e, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, CodeInvalidPayload, e.Code)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, CategoryValidation, CategoryOf(err))
		})
	}
}

func TestJob_JSONRoundTrip(t *testing.T) {
	job := Job{
		InputFile:      "Airing/Show/ep02.mkv",
		OutputFolder:   "Airing [Hardsub]/Show",
		SubtitleOffset: floatPtr(0.25),
		SubIndex:       intPtr(0),
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)

	decoded, err := DecodeJob(data)
	require.NoError(t, err)
	assert.Equal(t, job, decoded)
}

func TestJob_Validate(t *testing.T) {
	assert.NoError(t, Job{InputFile: "a", OutputFolder: "b"}.Validate())
	assert.Error(t, Job{InputFile: "a"}.Validate())
	assert.Error(t, Job{InputFile: "a", OutputFolder: "b", VideoIndex: intPtr(-1)}.Validate())
}

func TestJob_OutputName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Premiered/Show/ep01.mkv", "ep01.mp4"},
		{"Show - 01 [1080p].mkv", "Show - 01 [1080p].mp4"},
		{"a/b/already.mp4", "already.mp4"},
		{"noext", "noext.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Job{InputFile: tt.input}.OutputName())
		})
	}
}

func TestJob_Fields(t *testing.T) {
	job := Job{
		InputFile:    "in.mkv",
		OutputFolder: "out",
		ShowName:     "Show",
		AudioIndex:   intPtr(1),
		FontSize:     floatPtr(40.5),
	}

	assert.Equal(t, []Field{
		{"inputFile", "in.mkv"},
		{"outputFolder", "out"},
		{"showName", "Show"},
		{"audioIndex", "1"},
		{"fontSize", "40.5"},
	}, job.Fields())
}
