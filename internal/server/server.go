// Package server exposes the job ledger over HTTP: HTML pages for
// humans and JSON endpoints for pollers.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"podcast-transcriber/internal/domain"
	"podcast-transcriber/internal/worker"
)

const defaultPageSize = 20

// JobService is the slice of the lifecycle manager the web layer uses.
type JobService interface {
	Submit(ctx context.Context, meta domain.Metadata, file io.Reader) (domain.Job, error)
	Retry(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (domain.Job, []domain.LogEntry, error)
	List(ctx context.Context, offset, limit int) ([]domain.Job, error)
}

// Server holds handler dependencies.
type Server struct {
	svc JobService
}

// New constructs the web layer over a job service.
func New(svc JobService) *Server {
	return &Server{svc: svc}
}

// Register mounts all routes and the template renderer on an echo
// instance.
func (s *Server) Register(e *echo.Echo) {
	e.Renderer = newRenderer()
	e.GET("/", s.handleIndex)
	e.GET("/job/:id", s.handleJob)
	e.POST("/submit", s.handleSubmit)
	e.GET("/retry/:id", s.handleRetry)
	e.GET("/api/jobs", s.handleAPIJobs)
	e.GET("/api/job/:id", s.handleAPIJob)
}

// jobRow is the template view of one ledger row.
type jobRow struct {
	ID        string
	Title     string
	Podcast   string
	Episode   string
	Status    string
	Progress  int
	CreatedAt string
}

// logRow is the template view of one log line.
type logRow struct {
	Timestamp string
	Message   string
}

func toJobRow(job domain.Job, _ int) jobRow {
	return jobRow{
		ID:        job.ID,
		Title:     job.Title,
		Podcast:   job.Podcast,
		Episode:   job.EpisodeNumber,
		Status:    string(job.Status),
		Progress:  job.Progress,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	}
}

// handleIndex renders the recent-jobs page with the submit form.
func (s *Server) handleIndex(c echo.Context) error {
	offset, limit := pageParams(c)
	jobs, err := s.svc.List(c.Request().Context(), offset, limit)
	if err != nil {
		return httpError(err)
	}

	return c.Render(http.StatusOK, "index.html", map[string]any{
		"Jobs":       lo.Map(jobs, toJobRow),
		"NextOffset": offset + limit,
	})
}

// handleJob renders one job's detail and log history.
func (s *Server) handleJob(c echo.Context) error {
	job, logs, err := s.svc.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	return c.Render(http.StatusOK, "job.html", map[string]any{
		"Job":      toJobRow(job, 0),
		"Terminal": domain.Terminal(job.Status),
		"Logs": lo.Map(logs, func(entry domain.LogEntry, _ int) logRow {
			return logRow{
				Timestamp: entry.Timestamp.Format("2006-01-02 15:04:05"),
				Message:   entry.Message,
			}
		}),
	})
}

// handleSubmit accepts the multipart upload and redirects to the new
// job's page. The request returns as soon as the job is queued.
func (s *Server) handleSubmit(c echo.Context) error {
	meta := domain.Metadata{
		Title:         c.FormValue("title"),
		Podcast:       c.FormValue("podcast"),
		EpisodeNumber: c.FormValue("episode"),
	}

	var file io.Reader
	header, err := c.FormFile("file")
	if err == nil {
		opened, err := header.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
		}
		defer opened.Close()
		file = opened
	}

	job, err := s.svc.Submit(c.Request().Context(), meta, file)
	if err != nil {
		return httpError(err)
	}
	return c.Redirect(http.StatusSeeOther, "/job/"+job.ID)
}

// handleRetry re-runs a terminal job.
func (s *Server) handleRetry(c echo.Context) error {
	id := c.Param("id")
	if err := s.svc.Retry(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.Redirect(http.StatusSeeOther, "/job/"+id)
}

// handleAPIJobs returns one JSON page of jobs for dashboards.
func (s *Server) handleAPIJobs(c echo.Context) error {
	offset, limit := pageParams(c)
	jobs, err := s.svc.List(c.Request().Context(), offset, limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, jobs)
}

// handleAPIJob returns the composite job view for status pollers.
func (s *Server) handleAPIJob(c echo.Context) error {
	job, logs, err := s.svc.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"job":  job,
		"logs": logs,
	})
}

// pageParams parses offset/limit query parameters with defaults.
func pageParams(c echo.Context) (offset, limit int) {
	limit = defaultPageSize
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return offset, limit
}

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case domain.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, worker.ErrQueueFull):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
