package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qbank-api/internal/dto"
	"github.com/noah-isme/qbank-api/internal/middleware"
	"github.com/noah-isme/qbank-api/internal/models"
	"github.com/noah-isme/qbank-api/internal/service"
	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
	"github.com/noah-isme/qbank-api/pkg/export"
)

type generationServiceMock struct {
	submitReq   dto.GenerationRequest
	submitActor string
	submitResp  *dto.GenerationJobResponse
	submitErr   error
	statusResp  *dto.GenerationStatusResponse
	statusErr   error
	listResp    *dto.QuestionListResponse
	listErr     error
}

func (m *generationServiceMock) Submit(ctx context.Context, req dto.GenerationRequest, actorID string) (*dto.GenerationJobResponse, error) {
	m.submitReq = req
	m.submitActor = actorID
	return m.submitResp, m.submitErr
}

func (m *generationServiceMock) GetStatus(ctx context.Context, id string) (*dto.GenerationStatusResponse, error) {
	return m.statusResp, m.statusErr
}

func (m *generationServiceMock) ListQuestions(ctx context.Context, id string) (*dto.QuestionListResponse, error) {
	return m.listResp, m.listErr
}

type exporterMock struct {
	format         export.Format
	includeAnswers bool
	out            *service.QuestionExport
	err            error
}

func (m *exporterMock) Export(ctx context.Context, jobID string, format export.Format, includeAnswers bool) (*service.QuestionExport, error) {
	m.format = format
	m.includeAnswers = includeAnswers
	return m.out, m.err
}

func TestGenerationHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &generationServiceMock{submitResp: &dto.GenerationJobResponse{
		ID: "job-1", Status: models.JobStatusPending, ProcessingStage: models.StageQueued, DispatchMode: models.DispatchAsync,
	}}
	h := NewGenerationHandler(svc, nil, "/api/v1/")

	payload, _ := json.Marshal(dto.GenerationRequest{
		CourseID:   "cs101",
		MaterialID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		Unit:       1,
		Quotas:     models.Quotas{Marks: map[int]int{2: 5, 8: 5}},
	})
	c, w := newGinContext(http.MethodPost, "/generation-jobs", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "instructor-1"})
	h.Submit(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "/api/v1/generation-jobs/job-1", w.Header().Get("Location"))
	assert.Equal(t, "instructor-1", svc.submitActor)
	assert.Equal(t, 10, svc.submitReq.Quotas.Total())

	var resp dto.GenerationJobResponse
	assert.Nil(t, decodeEnvelope(t, w, &resp))
	assert.Equal(t, models.DispatchAsync, resp.DispatchMode)
}

func TestGenerationHandlerSubmitErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewGenerationHandler(&generationServiceMock{}, nil, "/api/v1")
	c, w := newGinContext(http.MethodPost, "/generation-jobs", []byte("{not json"))
	h.Submit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc := &generationServiceMock{submitErr: appErrors.Clone(appErrors.ErrNotFound, "material not found")}
	h = NewGenerationHandler(svc, nil, "/api/v1")
	c, w = newGinContext(http.MethodPost, "/generation-jobs", []byte(`{"courseId":"cs101"}`))
	h.Submit(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerationHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	message := "the model returned no usable questions"
	svc := &generationServiceMock{statusResp: &dto.GenerationStatusResponse{
		ID: "job-1", Status: models.JobStatusFailed, ProcessingStage: models.StageFailed, Progress: 55, Error: &message,
	}}
	h := NewGenerationHandler(svc, nil, "")

	c, w := newGinContext(http.MethodGet, "/generation-jobs/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	h.Status(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.GenerationStatusResponse
	assert.Nil(t, decodeEnvelope(t, w, &resp))
	assert.Equal(t, models.StageFailed, resp.ProcessingStage)
	require.NotNil(t, resp.Error)
	assert.Equal(t, message, *resp.Error)

	svc.statusErr = appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
	c, w = newGinContext(http.MethodGet, "/generation-jobs/nope", nil)
	h.Status(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerationHandlerQuestions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &generationServiceMock{listResp: &dto.QuestionListResponse{
		JobID: "job-1", Status: models.JobStatusCompleted, Total: 1,
		Questions: []models.Question{{ID: "q-1", Text: "What is an array?", Marks: 2}},
	}}
	h := NewGenerationHandler(svc, nil, "")

	c, w := newGinContext(http.MethodGet, "/generation-jobs/job-1/questions", nil)
	h.Questions(c)
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.QuestionListResponse
	assert.Nil(t, decodeEnvelope(t, w, &resp))
	assert.Equal(t, 1, resp.Total)
	assert.NotContains(t, w.Body.String(), `"meta"`)

	svc.listResp = &dto.QuestionListResponse{JobID: "job-2", Status: models.JobStatusProcessing, Questions: []models.Question{}}
	c, w = newGinContext(http.MethodGet, "/generation-jobs/job-2/questions", nil)
	h.Questions(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"meta"`)
}

func TestGenerationHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exporter := &exporterMock{out: &service.QuestionExport{Filename: "cs101_unit1_job.csv", ContentType: "text/csv", Data: []byte("number,question\n")}}
	h := NewGenerationHandler(&generationServiceMock{}, exporter, "")

	c, w := newGinContext(http.MethodGet, "/generation-jobs/job-1/questions/export?format=CSV&answers=true", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "cs101_unit1_job.csv")
	assert.Equal(t, "number,question\n", w.Body.String())
	assert.Equal(t, export.FormatCSV, exporter.format)
	assert.True(t, exporter.includeAnswers)

	c, w = newGinContext(http.MethodGet, "/generation-jobs/job-1/questions/export?format=docx", nil)
	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/generation-jobs/job-1/questions/export?answers=maybe", nil)
	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	exporter.err = appErrors.Clone(appErrors.ErrConflict, "questions can be exported once the job has completed")
	c, w = newGinContext(http.MethodGet, "/generation-jobs/job-1/questions/export", nil)
	h.Export(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, export.FormatPDF, exporter.format)
}
