package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qbank-api/internal/dto"
	"github.com/noah-isme/qbank-api/internal/models"
	"github.com/noah-isme/qbank-api/internal/service"
	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
	"github.com/noah-isme/qbank-api/pkg/response"
)

type materialService interface {
	Upload(ctx context.Context, req dto.UploadMaterialRequest, data []byte) (*models.CourseMaterial, error)
	Get(ctx context.Context, id string) (*models.CourseMaterial, error)
	List(ctx context.Context, courseID string) ([]models.CourseMaterial, error)
	ProcessMaterial(ctx context.Context, id string, onStage service.StageFunc) (bool, error)
}

// MaterialHandler exposes course material upload and processing endpoints.
type MaterialHandler struct {
	materials      materialService
	maxUploadBytes int64
}

// NewMaterialHandler constructs the handler. maxUploadBytes caps the uploaded file size.
func NewMaterialHandler(materials materialService, maxUploadBytes int64) *MaterialHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 25 << 20
	}
	return &MaterialHandler{materials: materials, maxUploadBytes: maxUploadBytes}
}

// Upload godoc
// @Summary Upload course material
// @Tags Materials
// @Accept multipart/form-data
// @Produce json
// @Param courseId formData string true "Course ID"
// @Param kind formData string false "SYLLABUS or UNIT"
// @Param unit formData int false "Unit number"
// @Param title formData string false "Title"
// @Param file formData file true "PDF document"
// @Success 201 {object} response.Envelope
// @Router /materials [post]
func (h *MaterialHandler) Upload(c *gin.Context) {
	// multipart overhead on top of the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)

	var req dto.UploadMaterialRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, h.bindError(err))
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, h.bindError(err))
		return
	}
	if header.Size > h.maxUploadBytes {
		response.Error(c, h.tooLarge())
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unable to read uploaded file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unable to read uploaded file"))
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		response.Error(c, h.tooLarge())
		return
	}
	req.Filename = header.Filename

	material, err := h.materials.Upload(c.Request.Context(), req, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewMaterialResponse(material))
}

// Get godoc
// @Summary Get course material
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id} [get]
func (h *MaterialHandler) Get(c *gin.Context) {
	material, err := h.materials.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewMaterialResponse(material), nil)
}

// List godoc
// @Summary List course materials
// @Tags Materials
// @Produce json
// @Param courseId query string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /materials [get]
func (h *MaterialHandler) List(c *gin.Context) {
	materials, err := h.materials.List(c.Request.Context(), c.Query("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]dto.MaterialResponse, 0, len(materials))
	for i := range materials {
		items = append(items, dto.NewMaterialResponse(&materials[i]))
	}
	response.JSON(c, http.StatusOK, items, &models.Pagination{Page: 1, PageSize: len(items), TotalCount: len(items)})
}

// Process godoc
// @Summary Extract and segment a material
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id}/process [post]
func (h *MaterialHandler) Process(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	processed, err := h.materials.ProcessMaterial(ctx, id, nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	material, err := h.materials.Get(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ProcessMaterialResponse{Material: dto.NewMaterialResponse(material), Processed: processed}, nil)
}

func (h *MaterialHandler) bindError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return h.tooLarge()
	}
	if errors.Is(err, http.ErrMissingFile) {
		return appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload form")
}

func (h *MaterialHandler) tooLarge() error {
	return appErrors.New("PAYLOAD_TOO_LARGE", http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes))
}
