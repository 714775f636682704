package handlers

import (
	"context"
	"fmt"

	"github.com/ahoge-moe/Shiden/internal/http/middleware"
	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/ahoge-moe/Shiden/internal/repository"
	"github.com/danielgtaylor/huma/v2"
)

// RunsHandler exposes the job run history.
type RunsHandler struct {
	repo repository.JobRunRepository
	auth *middleware.Authenticator
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo repository.JobRunRepository, auth *middleware.Authenticator) *RunsHandler {
	return &RunsHandler{repo: repo, auth: auth}
}

// ListRunsInput is the input for listing runs.
type ListRunsInput struct {
	Authorization string `header:"Authorization"`
	Status        string `query:"status" enum:"running,succeeded,failed,killed" doc:"Only runs with this status"`
	Show          string `query:"show" doc:"Only runs for this show"`
	Offset        int    `query:"offset" default:"0" minimum:"0"`
	Limit         int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
}

// ListRunsOutput is the output for listing runs.
type ListRunsOutput struct {
	Body struct {
		Runs   []*models.JobRun `json:"runs"`
		Total  int64            `json:"total"`
		Offset int              `json:"offset"`
		Limit  int              `json:"limit"`
	}
}

// GetRunInput is the input for fetching one run.
type GetRunInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Run ID (ULID)"`
}

// GetRunOutput is the output for fetching one run.
type GetRunOutput struct {
	Body *models.JobRun
}

// Register registers the run history routes with the API.
func (h *RunsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listRuns",
		Method:      "GET",
		Path:        "/api/v1/runs",
		Summary:     "List job runs",
		Description: "Returns processed jobs newest first",
		Tags:        []string{"Runs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getRun",
		Method:      "GET",
		Path:        "/api/v1/runs/{id}",
		Summary:     "Get job run",
		Tags:        []string{"Runs"},
	}, h.GetByID)
}

// List returns a page of job runs.
func (h *RunsHandler) List(ctx context.Context, input *ListRunsInput) (*ListRunsOutput, error) {
	if err := h.authorize(input.Authorization); err != nil {
		return nil, err
	}

	filter := repository.JobRunFilter{
		Status:   models.JobRunStatus(input.Status),
		ShowName: input.Show,
	}
	runs, total, err := h.repo.List(ctx, filter, input.Offset, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list runs", err)
	}

	resp := &ListRunsOutput{}
	resp.Body.Runs = runs
	resp.Body.Total = total
	resp.Body.Offset = input.Offset
	resp.Body.Limit = input.Limit
	return resp, nil
}

// GetByID returns a single job run.
func (h *RunsHandler) GetByID(ctx context.Context, input *GetRunInput) (*GetRunOutput, error) {
	if err := h.authorize(input.Authorization); err != nil {
		return nil, err
	}

	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	run, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get run", err)
	}
	if run == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("run %s not found", input.ID))
	}

	return &GetRunOutput{Body: run}, nil
}

func (h *RunsHandler) authorize(key string) error {
	if _, ok := h.auth.Identify(key); !ok {
		return huma.Error401Unauthorized(middleware.MsgNotAuthorized)
	}
	return nil
}
