package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qbank-api/internal/dto"
	"github.com/noah-isme/qbank-api/internal/models"
	"github.com/noah-isme/qbank-api/internal/service"
	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
	"github.com/noah-isme/qbank-api/pkg/export"
	"github.com/noah-isme/qbank-api/pkg/response"
)

type generationService interface {
	Submit(ctx context.Context, req dto.GenerationRequest, actorID string) (*dto.GenerationJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.GenerationStatusResponse, error)
	ListQuestions(ctx context.Context, id string) (*dto.QuestionListResponse, error)
}

type questionExporter interface {
	Export(ctx context.Context, jobID string, format export.Format, includeAnswers bool) (*service.QuestionExport, error)
}

// GenerationHandler exposes question generation job endpoints.
type GenerationHandler struct {
	generation generationService
	exporter   questionExporter
	basePath   string
}

// NewGenerationHandler constructs the handler. basePath prefixes the Location header
// of accepted jobs.
func NewGenerationHandler(generation generationService, exporter questionExporter, basePath string) *GenerationHandler {
	return &GenerationHandler{generation: generation, exporter: exporter, basePath: strings.TrimRight(basePath, "/")}
}

// Submit godoc
// @Summary Submit a question generation job
// @Tags Generation
// @Accept json
// @Produce json
// @Param payload body dto.GenerationRequest true "Generation request"
// @Success 202 {object} response.Envelope
// @Router /generation-jobs [post]
func (h *GenerationHandler) Submit(c *gin.Context) {
	var req dto.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	job, err := h.generation.Submit(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, fmt.Sprintf("%s/generation-jobs/%s", h.basePath, job.ID), job)
}

// Status godoc
// @Summary Generation job status
// @Tags Generation
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /generation-jobs/{id} [get]
func (h *GenerationHandler) Status(c *gin.Context) {
	status, err := h.generation.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Questions godoc
// @Summary Questions produced by a job
// @Tags Generation
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /generation-jobs/{id}/questions [get]
func (h *GenerationHandler) Questions(c *gin.Context) {
	list, err := h.generation.ListQuestions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if list.Status != models.JobStatusCompleted {
		meta = map[string]interface{}{"note": "questions are listed once the job has completed"}
	}
	response.JSON(c, http.StatusOK, list, nil, meta)
}

// Export godoc
// @Summary Download a job's questions as a question paper
// @Tags Generation
// @Produce application/pdf
// @Produce text/csv
// @Param id path string true "Job ID"
// @Param format query string false "pdf or csv"
// @Param answers query bool false "Include the answer key"
// @Success 200 {file} file
// @Router /generation-jobs/{id}/questions/export [get]
func (h *GenerationHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(strings.ToLower(c.Query("format")))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	includeAnswers := false
	if raw := c.Query("answers"); raw != "" {
		includeAnswers, err = strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "answers must be a boolean"))
			return
		}
	}

	out, err := h.exporter.Export(c.Request.Context(), c.Param("id"), format, includeAnswers)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, out.ContentType, out.Data)
}
