package ffmpeg

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahoge-moe/Shiden/internal/config"
	"github.com/ahoge-moe/Shiden/internal/process"
	"github.com/ahoge-moe/Shiden/internal/util"
)

// Environment variables that override binary lookup.
const (
	EnvFFmpegBinary  = "SHIDEN_FFMPEG_BINARY"
	EnvFFprobeBinary = "SHIDEN_FFPROBE_BINARY"
)

// Binaries holds the resolved tool paths.
type Binaries struct {
	FFmpeg  string
	FFprobe string
}

// ResolveBinaries locates ffmpeg and ffprobe from config, environment or PATH.
func ResolveBinaries(cfg config.FFmpegConfig) (Binaries, error) {
	ffmpegPath, err := util.FindBinary("ffmpeg", EnvFFmpegBinary, cfg.BinaryPath)
	if err != nil {
		return Binaries{}, fmt.Errorf("locating ffmpeg: %w", err)
	}
	ffprobePath, err := util.FindBinary("ffprobe", EnvFFprobeBinary, cfg.ProbePath)
	if err != nil {
		return Binaries{}, fmt.Errorf("locating ffprobe: %w", err)
	}
	return Binaries{FFmpeg: ffmpegPath, FFprobe: ffprobePath}, nil
}

// Version returns the first line of `ffmpeg -version`.
func Version(ctx context.Context, runner process.Runner, ffmpegPath string) (string, error) {
	out, err := runner.Run(ctx, ffmpegPath, "-version")
	if err != nil {
		return "", fmt.Errorf("running %s -version: %w", ffmpegPath, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}
