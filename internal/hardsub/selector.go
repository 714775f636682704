// Package hardsub decides which streams to encode and burns subtitles into
// the video, falling back from text to bitmap rendering.
package hardsub

import (
	"fmt"

	"github.com/ahoge-moe/Shiden/internal/ffmpeg"
	"github.com/ahoge-moe/Shiden/internal/models"
)

// stereoChannels is the channel count preferred when no audio index is given.
const stereoChannels = 2

// Selection is a chosen stream. A nil Stream defers to ffmpeg's own default
// stream of the selection's type.
type Selection struct {
	Stream    *ffmpeg.ProbeStream
	codecType string
}

// MapSpec returns the -map argument selecting this stream from input n.
func (s Selection) MapSpec(n int) string {
	if s.Stream != nil {
		return fmt.Sprintf("%d:%d", n, s.Stream.Index)
	}
	switch s.codecType {
	case ffmpeg.CodecTypeAudio:
		return fmt.Sprintf("%d:a", n)
	case ffmpeg.CodecTypeSubtitle:
		return fmt.Sprintf("%d:s", n)
	default:
		return fmt.Sprintf("%d:v", n)
	}
}

// findByIndex looks a stream up by its reported index, not its list position.
func findByIndex(streams []ffmpeg.ProbeStream, index int) (ffmpeg.ProbeStream, bool) {
	for _, s := range streams {
		if s.Index == index {
			return s, true
		}
	}
	return ffmpeg.ProbeStream{}, false
}

func explicit(streams []ffmpeg.ProbeStream, index int, codecType string, code models.ErrorCode) (Selection, error) {
	s, ok := findByIndex(streams, index)
	if !ok {
		return Selection{}, models.Errorf(code, "stream %d does not exist", index)
	}
	if !s.Is(codecType) {
		return Selection{}, models.Errorf(code, "stream %d is %s, not %s", index, s.CodecType, codecType)
	}
	return Selection{Stream: &s, codecType: codecType}, nil
}

// SelectVideo picks the job's explicit video stream, or ffmpeg's first video stream.
func SelectVideo(streams []ffmpeg.ProbeStream, job models.Job) (Selection, error) {
	if job.VideoIndex != nil {
		return explicit(streams, *job.VideoIndex, ffmpeg.CodecTypeVideo, models.CodeInvalidVideoIndex)
	}
	return Selection{codecType: ffmpeg.CodecTypeVideo}, nil
}

// SelectAudio picks the job's explicit audio stream. Without one it prefers
// the first stereo stream, then ffmpeg's first audio stream.
func SelectAudio(streams []ffmpeg.ProbeStream, job models.Job) (Selection, error) {
	if job.AudioIndex != nil {
		return explicit(streams, *job.AudioIndex, ffmpeg.CodecTypeAudio, models.CodeInvalidAudioIndex)
	}
	for _, s := range streams {
		if s.Is(ffmpeg.CodecTypeAudio) && s.Channels == stereoChannels {
			return Selection{Stream: &s, codecType: ffmpeg.CodecTypeAudio}, nil
		}
	}
	return Selection{codecType: ffmpeg.CodecTypeAudio}, nil
}

// HasSubtitle reports whether any stream is a subtitle.
func HasSubtitle(streams []ffmpeg.ProbeStream) bool {
	for _, s := range streams {
		if s.Is(ffmpeg.CodecTypeSubtitle) {
			return true
		}
	}
	return false
}

// SelectSubtitle picks the job's explicit subtitle stream, or the first
// subtitle stream. ok is false when there is no subtitle stream at all;
// callers check HasSubtitle first.
func SelectSubtitle(streams []ffmpeg.ProbeStream, job models.Job) (stream ffmpeg.ProbeStream, ok bool, err error) {
	if job.SubIndex != nil {
		sel, err := explicit(streams, *job.SubIndex, ffmpeg.CodecTypeSubtitle, models.CodeInvalidSubtitleIndex)
		if err != nil {
			return ffmpeg.ProbeStream{}, false, err
		}
		return *sel.Stream, true, nil
	}
	for _, s := range streams {
		if s.Is(ffmpeg.CodecTypeSubtitle) {
			return s, true, nil
		}
	}
	return ffmpeg.ProbeStream{}, false, nil
}
