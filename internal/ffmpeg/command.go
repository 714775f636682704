// Package ffmpeg builds and runs ffmpeg and ffprobe invocations.
package ffmpeg

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ahoge-moe/Shiden/internal/process"
)

// Command represents an FFmpeg command to execute.
type Command struct {
	Binary string
	Args   []string
	Output string
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Run executes the command with runner and waits for completion.
func (c *Command) Run(ctx context.Context, runner process.Runner) error {
	_, err := runner.Run(ctx, c.Binary, c.Args...)
	return err
}

type input struct {
	args []string
	path string
}

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary        string
	logLevel      string
	globalArgs    []string
	overwrite     bool
	pendingArgs   []string
	inputs        []input
	filters       []string
	filterComplex string
	outputArgs    []string
	maxDuration   time.Duration
	output        string
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner suppresses the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables overwriting the output file (-y).
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// InputArgs adds arguments that apply to the next Input.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.pendingArgs = append(b.pendingArgs, args...)
	return b
}

// InputOffset shifts the timestamps of the next Input (-itsoffset).
func (b *CommandBuilder) InputOffset(seconds float64) *CommandBuilder {
	return b.InputArgs("-itsoffset", formatSeconds(seconds))
}

// Input adds an input file. Inputs are numbered in the order they are added.
func (b *CommandBuilder) Input(path string) *CommandBuilder {
	b.inputs = append(b.inputs, input{args: b.pendingArgs, path: path})
	b.pendingArgs = nil
	return b
}

// Map selects a stream for the output (-map).
func (b *CommandBuilder) Map(spec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-map", spec)
	return b
}

// Codec sets the codec for every stream (-c).
func (b *CommandBuilder) Codec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c", codec)
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// VideoFilter adds a video filter. Filters are joined into a single -vf chain.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filters = append(b.filters, filter)
	return b
}

// FilterComplex sets the -filter_complex graph.
func (b *CommandBuilder) FilterComplex(graph string) *CommandBuilder {
	b.filterComplex = graph
	return b
}

// Strict sets the standards compliance level (-strict).
func (b *CommandBuilder) Strict(level string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-strict", level)
	return b
}

// MaxDuration caps the output duration (-t). Zero leaves it uncapped.
func (b *CommandBuilder) MaxDuration(d time.Duration) *CommandBuilder {
	b.maxDuration = d
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	args := []string{"-loglevel", b.logLevel}
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.path)
	}

	if b.filterComplex != "" {
		args = append(args, "-filter_complex", b.filterComplex)
	}
	if len(b.filters) > 0 {
		args = append(args, "-vf", strings.Join(b.filters, ","))
	}

	args = append(args, b.outputArgs...)

	if b.maxDuration > 0 {
		args = append(args, "-t", formatSeconds(b.maxDuration.Seconds()))
	}

	args = append(args, b.output)

	return &Command{
		Binary: b.binary,
		Args:   args,
		Output: b.output,
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
