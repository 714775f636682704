package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ahoge-moe/Shiden/internal/process"
)

// Stream codec types reported by ffprobe.
const (
	CodecTypeVideo    = "video"
	CodecTypeAudio    = "audio"
	CodecTypeSubtitle = "subtitle"
)

// ProbeResult contains the ffprobe output we consume.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// ProbeStream is one elementary stream. Index is the container's own stream
// index, which need not match the stream's position in Streams.
type ProbeStream struct {
	Index         int               `json:"index"`
	CodecName     string            `json:"codec_name,omitempty"`
	CodecType     string            `json:"codec_type"`
	Channels      int               `json:"channels,omitempty"`
	ChannelLayout string            `json:"channel_layout,omitempty"`
	Disposition   ProbeDisposition  `json:"disposition"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// ProbeDisposition contains the stream disposition flags we care about.
type ProbeDisposition struct {
	Default int `json:"default"`
	Forced  int `json:"forced"`
}

// Language returns the stream's language tag, if any.
func (s ProbeStream) Language() string {
	return s.Tags["language"]
}

// Is reports whether the stream has the given codec type.
func (s ProbeStream) Is(codecType string) bool {
	return s.CodecType == codecType
}

// Prober runs ffprobe.
type Prober struct {
	ffprobePath string
	runner      process.Runner
	timeout     time.Duration
}

// NewProber creates a new prober. A zero timeout means no limit.
func NewProber(ffprobePath string, runner process.Runner) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		runner:      runner,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe returns the streams of a local file.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	probeCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	output, err := p.runner.Run(probeCtx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-i", path,
	)
	if err != nil {
		// Our own timeout is a probe failure, not a kill.
		if ctx.Err() == nil && errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	return &result, nil
}

// StreamsByType returns the streams of the given codec type in probe order.
func (r *ProbeResult) StreamsByType(codecType string) []ProbeStream {
	var out []ProbeStream
	for _, s := range r.Streams {
		if s.Is(codecType) {
			out = append(out, s)
		}
	}
	return out
}
