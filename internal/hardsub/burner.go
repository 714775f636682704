package hardsub

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ahoge-moe/Shiden/internal/config"
	"github.com/ahoge-moe/Shiden/internal/ffmpeg"
	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/ahoge-moe/Shiden/internal/observability"
	"github.com/ahoge-moe/Shiden/internal/process"
)

// Fixed workspace file names.
const (
	stagedInputBase    = "temp_input"
	stagedSubtitleBase = "temp_sub"
	preparedBase       = "prepped_input"
	extractedSubtitle  = "sub.ass"
	offsetSubtitle     = "offset.ass"
)

// Workspace is the scratch directory the burner works in.
type Workspace interface {
	Path(name string) string
	Rename(from, to string) error
}

// Options configures encoding.
type Options struct {
	FFmpegPath      string
	FontsDir        string
	DefaultFont     string
	DefaultFontSize float64
	AudioCodec      string
	AudioBitrate    string
	// MaxDuration caps every encode when positive.
	MaxDuration time.Duration
}

// OptionsFromConfig builds Options from the ffmpeg config section.
func OptionsFromConfig(cfg config.FFmpegConfig, ffmpegPath string) Options {
	return Options{
		FFmpegPath:      ffmpegPath,
		FontsDir:        cfg.FontsDir,
		DefaultFont:     cfg.DefaultFont,
		DefaultFontSize: cfg.DefaultFontSize,
		AudioCodec:      cfg.AudioCodec,
		AudioBitrate:    cfg.AudioBitrate,
		MaxDuration:     cfg.MaxDuration,
	}
}

// Result describes the produced artifact.
type Result struct {
	OutputName string
	Strategy   models.BurnStrategy
}

// Burner runs the prepare / hardsub / change-container sequence for one job.
type Burner struct {
	opts   Options
	runner process.Runner
	prober *ffmpeg.Prober
	logger *slog.Logger
}

// NewBurner creates a burner.
func NewBurner(opts Options, runner process.Runner, prober *ffmpeg.Prober) *Burner {
	return &Burner{
		opts:   opts,
		runner: runner,
		prober: prober,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger.
func (b *Burner) WithLogger(logger *slog.Logger) *Burner {
	b.logger = observability.WithComponent(logger, "hardsub")
	return b
}

// burnJob carries per-job paths through the steps.
type burnJob struct {
	job      models.Job
	ws       Workspace
	input    string
	prepared string
	output   string
	logger   *slog.Logger
}

// Burn turns the downloaded input (and optional subtitle file) in ws into an
// .mp4 with subtitles burned in. Text rendering is always tried before the
// bitmap overlay and the two never run concurrently.
func (b *Burner) Burn(ctx context.Context, ws Workspace, job models.Job) (Result, error) {
	ext := path.Ext(job.InputName())
	bj := &burnJob{
		job:      job,
		ws:       ws,
		input:    ws.Path(stagedInputBase + ext),
		prepared: ws.Path(preparedBase + ext),
		output:   ws.Path(job.OutputName()),
		logger:   observability.WithJob(b.logger, job.InputFile, job.OutputFolder),
	}

	if err := ws.Rename(job.InputName(), stagedInputBase+ext); err != nil {
		return Result{}, models.NewError(models.CodeStageFailed, err)
	}

	probe, err := b.prober.Probe(ctx, bj.input)
	if err != nil {
		return Result{}, models.NewError(models.CodeProbeFailed, err)
	}

	if err := b.prepare(ctx, bj, probe.Streams); err != nil {
		return Result{}, err
	}

	subSource, subStreams := bj.input, probe.Streams
	if job.SubtitleFile != "" {
		subSource, subStreams, err = b.stageSubtitle(ctx, bj)
		if err != nil {
			return Result{}, err
		}
	}

	if !HasSubtitle(subStreams) {
		bj.logger.InfoContext(ctx, "no subtitle stream, changing container")
		if err := b.changeContainer(ctx, bj); err != nil {
			return Result{}, err
		}
		return Result{OutputName: job.OutputName(), Strategy: models.StrategyNone}, nil
	}

	stream, _, err := SelectSubtitle(subStreams, job)
	if err != nil {
		return Result{}, err
	}

	bj.logger.InfoContext(ctx, "trying text based hardsub",
		slog.Int("subtitle_index", stream.Index),
		slog.String("subtitle_codec", stream.CodecName),
	)
	textErr := b.hardsubText(ctx, bj, subSource, stream.Index)
	if textErr == nil {
		return Result{OutputName: job.OutputName(), Strategy: models.StrategyText}, nil
	}
	if models.IsKilled(textErr) {
		return Result{}, textErr
	}

	bj.logger.WarnContext(ctx, "text based hardsub failed, trying bitmap based hardsub",
		slog.String("error", textErr.Error()),
	)
	if err := b.hardsubBitmap(ctx, bj, subSource, stream.Index); err != nil {
		return Result{}, err
	}
	return Result{OutputName: job.OutputName(), Strategy: models.StrategyBitmap}, nil
}

// prepare remuxes the chosen video (copied) and audio (re-encoded) stream into one file.
func (b *Burner) prepare(ctx context.Context, bj *burnJob, streams []ffmpeg.ProbeStream) error {
	video, err := SelectVideo(streams, bj.job)
	if err != nil {
		return err
	}
	audio, err := SelectAudio(streams, bj.job)
	if err != nil {
		return err
	}

	bj.logger.InfoContext(ctx, "preparing input",
		slog.String("video", video.MapSpec(0)),
		slog.String("audio", audio.MapSpec(0)),
	)

	cmd := b.command().
		Input(bj.input).
		Map(video.MapSpec(0)).
		VideoCodec("copy").
		Map(audio.MapSpec(0)).
		AudioCodec(b.opts.AudioCodec).
		AudioBitrate(b.opts.AudioBitrate).
		MaxDuration(b.opts.MaxDuration).
		Output(bj.prepared).
		Build()
	return b.run(ctx, "prepare", cmd, models.CodePrepareFailed)
}

// stageSubtitle renames the separately supplied subtitle file and probes it.
func (b *Burner) stageSubtitle(ctx context.Context, bj *burnJob) (string, []ffmpeg.ProbeStream, error) {
	name := path.Base(bj.job.SubtitleFile)
	staged := stagedSubtitleBase + path.Ext(name)
	if err := bj.ws.Rename(name, staged); err != nil {
		return "", nil, models.NewError(models.CodeStageFailed, err)
	}

	subPath := bj.ws.Path(staged)
	probe, err := b.prober.Probe(ctx, subPath)
	if err != nil {
		return "", nil, models.NewError(models.CodeProbeFailed, err)
	}
	if !HasSubtitle(probe.Streams) {
		return "", nil, models.Errorf(models.CodeNoSubtitleStreamInFile, "%s has no subtitle stream", name)
	}
	return subPath, probe.Streams, nil
}

func (b *Burner) changeContainer(ctx context.Context, bj *burnJob) error {
	cmd := b.command().
		Overwrite().
		Input(bj.prepared).
		Codec("copy").
		Strict("-2").
		MaxDuration(b.opts.MaxDuration).
		Output(bj.output).
		Build()
	return b.run(ctx, "change_container", cmd, models.CodeChangeContainerFailed)
}

// hardsubText extracts the subtitle stream to ASS, applies the job's offset
// and renders it with the subtitles filter.
func (b *Burner) hardsubText(ctx context.Context, bj *burnJob, source string, index int) error {
	subPath := bj.ws.Path(extractedSubtitle)

	extract := b.command().
		Overwrite().
		Input(source).
		Map(fmt.Sprintf("0:%d", index)).
		Output(subPath).
		Build()
	if err := b.run(ctx, "extract_subtitle", extract, models.CodeExtractSubtitleFailed); err != nil {
		return err
	}

	if offset := subtitleOffset(bj.job); offset != 0 {
		bj.logger.InfoContext(ctx, "shifting subtitle timing", slog.Float64("offset", offset))
		shift := b.command().
			Overwrite().
			InputOffset(offset).
			Input(subPath).
			Codec("copy").
			Output(bj.ws.Path(offsetSubtitle)).
			Build()
		if err := b.run(ctx, "shift_subtitle", shift, models.CodeTextHardsubFailed); err != nil {
			return err
		}
		if err := bj.ws.Rename(offsetSubtitle, extractedSubtitle); err != nil {
			return models.NewError(models.CodeTextHardsubFailed, err)
		}
	}

	cmd := b.command().
		Overwrite().
		Input(bj.prepared).
		VideoFilter(b.subtitlesFilter(subPath, bj.job)).
		Strict("-2").
		MaxDuration(b.opts.MaxDuration).
		Output(bj.output).
		Build()
	return b.run(ctx, "text_hardsub", cmd, models.CodeTextHardsubFailed)
}

// hardsubBitmap overlays the subtitle stream of source onto the prepared video.
func (b *Burner) hardsubBitmap(ctx context.Context, bj *burnJob, source string, index int) error {
	cmd := b.command().
		Overwrite().
		Input(bj.prepared).
		InputOffset(subtitleOffset(bj.job)).
		Input(source).
		FilterComplex(fmt.Sprintf("[0:v][1:%d]overlay[v]", index)).
		Map("[v]").
		Map("0:a").
		AudioCodec(b.opts.AudioCodec).
		AudioBitrate(b.opts.AudioBitrate).
		Strict("-2").
		MaxDuration(b.opts.MaxDuration).
		Output(bj.output).
		Build()
	return b.run(ctx, "bitmap_hardsub", cmd, models.CodeHardsubFailed)
}

func (b *Burner) subtitlesFilter(subPath string, job models.Job) string {
	font := b.opts.DefaultFont
	if job.FontStyle != "" {
		font = job.FontStyle
	}
	size := b.opts.DefaultFontSize
	if job.FontSize != nil && *job.FontSize > 0 {
		size = *job.FontSize
	}

	return fmt.Sprintf("subtitles=%s:force_style='FontName=%s,Fontsize=%s':fontsdir=%s",
		escapeFilterValue(subPath),
		font,
		strconv.FormatFloat(size, 'f', -1, 64),
		escapeFilterValue(b.opts.FontsDir),
	)
}

func (b *Burner) command() *ffmpeg.CommandBuilder {
	return ffmpeg.NewCommandBuilder(b.opts.FFmpegPath).HideBanner()
}

func (b *Burner) run(ctx context.Context, step string, cmd *ffmpeg.Command, code models.ErrorCode) (err error) {
	defer observability.TimedOperationWithError(ctx, b.logger, step, &err)()
	if err := cmd.Run(ctx, b.runner); err != nil {
		return models.NewError(code, err)
	}
	return nil
}

func subtitleOffset(job models.Job) float64 {
	if job.SubtitleOffset == nil {
		return 0
	}
	return *job.SubtitleOffset
}

// filterEscaper escapes characters special inside a filter option value.
var filterEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)

func escapeFilterValue(s string) string {
	return filterEscaper.Replace(s)
}
