package rclone

import (
	"context"
	"log/slog"

	"github.com/ahoge-moe/Shiden/internal/models"
)

// Transfer downloads job inputs from prioritised sources and uploads outputs
// to every destination.
type Transfer struct {
	client       *Client
	sources      []string
	destinations []string
	logger       *slog.Logger
}

// NewTransfer creates a Transfer over client.
func NewTransfer(client *Client, sources, destinations []string) *Transfer {
	return &Transfer{
		client:       client,
		sources:      sources,
		destinations: destinations,
		logger:       slog.Default(),
	}
}

// WithLogger sets the logger.
func (t *Transfer) WithLogger(logger *slog.Logger) *Transfer {
	t.logger = logger
	return t
}

// Fetch copies the job's input, and its subtitle file when set, into dir.
func (t *Transfer) Fetch(ctx context.Context, job models.Job, dir string) error {
	if err := t.fetchFile(ctx, job.InputFile, dir, models.CodeSourceNotFound); err != nil {
		return err
	}
	if job.SubtitleFile != "" {
		return t.fetchFile(ctx, job.SubtitleFile, dir, models.CodeSubtitleSourceNotFound)
	}
	return nil
}

// fetchFile copies p from the first source holding it.
func (t *Transfer) fetchFile(ctx context.Context, p, dir string, notFound models.ErrorCode) error {
	src, err := t.locate(ctx, p)
	if err != nil {
		return models.NewError(notFound, err)
	}
	if src == "" {
		return models.Errorf(notFound, "%s not found in any of %d sources", p, len(t.sources))
	}

	t.logger.InfoContext(ctx, "downloading", slog.String("source", src))
	if err := t.client.Copy(ctx, src, dir); err != nil {
		return models.NewError(models.CodeDownloadFailed, err)
	}
	return nil
}

// locate returns the full remote path of the first source holding p, or "".
func (t *Transfer) locate(ctx context.Context, p string) (string, error) {
	for _, source := range t.sources {
		full := JoinRemote(source, p)
		ok, err := t.client.Exists(ctx, full)
		if err != nil {
			return "", err
		}
		if ok {
			return full, nil
		}
		t.logger.DebugContext(ctx, "not found in source", slog.String("source", source), slog.String("path", p))
	}
	return "", nil
}

// Publish copies localFile into outputFolder on every destination, in order.
// The first failing destination aborts the upload.
func (t *Transfer) Publish(ctx context.Context, localFile, outputFolder string) error {
	for _, dest := range t.destinations {
		target := JoinRemote(dest, outputFolder)
		t.logger.InfoContext(ctx, "uploading", slog.String("destination", target))
		if err := t.client.Copy(ctx, localFile, target); err != nil {
			return models.NewError(models.CodeUploadFailed, err)
		}
	}
	return nil
}
