// Analysis job HTTP handlers.
//
// This file exposes the authenticated job endpoints:
//   - POST /v1/submit-analysis   (accept a radiograph, create a pending job)
//   - GET  /v1/get-result        (poll a job by id)
//
// Handlers are transport-thin: they read the tenant attached by the auth
// middleware, call application services, and translate results into the
// response envelope.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dental-gateway/internal/domain"
	"github.com/tbourn/dental-gateway/internal/http/middleware"
	"github.com/tbourn/dental-gateway/internal/ingest"
	"github.com/tbourn/dental-gateway/internal/services"
)

//
// Service contracts (context-aware)
//

// SubmissionService accepts radiographs and creates analysis jobs.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SubmissionService interface {
	// Submit stores the upload and creates a pending job for t.
	Submit(ctx context.Context, t domain.Tenant, up *ingest.Upload, idemKey, requestID string) (*services.Submission, error)
	// Replay returns the job an earlier call with idemKey created, if any.
	Replay(ctx context.Context, t domain.Tenant, idemKey string) (*services.Submission, bool, error)
}

// ResultService answers result polls.
type ResultService interface {
	// Get returns job jobID when it belongs to t.
	Get(ctx context.Context, t domain.Tenant, jobID string) (*services.JobResult, error)
}

//
// Handler wiring
//

// Handlers groups the job endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	submitSvc     SubmissionService
	resultSvc     ResultService
	maxImageBytes int64
}

// New constructs Handlers. maxImageBytes is the per-image ceiling enforced
// while the multipart body is streamed.
func New(submitSvc SubmissionService, resultSvc ResultService, maxImageBytes int64) *Handlers {
	return &Handlers{submitSvc: submitSvc, resultSvc: resultSvc, maxImageBytes: maxImageBytes}
}

//
// DTOs
//

// SubmitResponse is the data member of a successful submission.
type SubmitResponse struct {
	JobID     string           `json:"job_id" example:"0b6f1f9e-3c1d-4a8e-9a47-6f2f0d6c1a11"`
	Status    domain.JobStatus `json:"status" example:"pending"`
	CreatedAt time.Time        `json:"created_at" example:"2025-03-14T09:26:53Z"`
}

// SubmitEnvelope documents the submission success body in OpenAPI.
type SubmitEnvelope struct {
	Success bool           `json:"success" example:"true"`
	Data    SubmitResponse `json:"data"`
}

// ResultResponse is the data member of a successful poll. Optional fields
// appear only for the matching terminal status.
type ResultResponse struct {
	JobID            string           `json:"job_id" example:"0b6f1f9e-3c1d-4a8e-9a47-6f2f0d6c1a11"`
	Status           domain.JobStatus `json:"status" example:"completed"`
	RadiographType   *string          `json:"radiograph_type,omitempty" example:"panoramic"`
	InferenceVersion *string          `json:"inference_version,omitempty" example:"v2.3.1"`
	Result           json.RawMessage  `json:"result,omitempty" swaggertype:"object"`
	ErrorMessage     *string          `json:"error_message,omitempty"`
}

// ResultEnvelope documents the poll success body in OpenAPI.
type ResultEnvelope struct {
	Success bool           `json:"success" example:"true"`
	Data    ResultResponse `json:"data"`
}

func submitResponse(s *services.Submission) SubmitResponse {
	return SubmitResponse{JobID: s.JobID, Status: s.Status, CreatedAt: s.CreatedAt.UTC()}
}

// tenant returns the authenticated caller. Routes are mounted behind Auth,
// so a missing tenant is a wiring bug and answered with 500.
func tenant(c *gin.Context) (domain.Tenant, bool) {
	t, found := middleware.TenantFrom(c)
	if !found {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, msgInternal)
	}
	return t, found
}

// SubmitAnalysis godoc
//
// @ID           submitAnalysis
// @Summary      Submit a radiograph for analysis
// @Description  Streams a multipart body, stores the image and creates a pending job. The job is handed to the inference queue in the background. A repeated Idempotency-Key returns the original job.
// @Tags         Jobs
// @Accept       multipart/form-data
// @Produce      json
// @Security     ApiKeyAuth
// @Param        image            formData  file    true   "Radiograph (image/jpeg, image/png, image/webp)"
// @Param        patient_ref      formData  string  false  "Caller's patient reference"
// @Param        doctor_ref       formData  string  false  "Caller's doctor reference"
// @Param        clinic_ref       formData  string  false  "Caller's clinic reference"
// @Param        Idempotency-Key  header    string  false  "Client-supplied key to make retries safe (<=200 chars)"
// @Success      200  {object}  handlers.SubmitEnvelope
// @Failure      400  {object}  handlers.ErrorResponse  "INVALID_CONTENT_TYPE, MULTIPART_PARSE_ERROR, MISSING_IMAGE, INVALID_IMAGE_TYPE, INVALID_IDEMPOTENCY_KEY"
// @Failure      401  {object}  handlers.ErrorResponse  "MISSING_API_KEY, INVALID_API_KEY, API_KEY_INACTIVE"
// @Failure      413  {object}  handlers.ErrorResponse  "IMAGE_TOO_LARGE"
// @Failure      429  {object}  handlers.ErrorResponse  "RATE_LIMITED"
// @Failure      500  {object}  handlers.ErrorResponse  "UPLOAD_FAILED, JOB_CREATION_FAILED, INTERNAL_ERROR"
// @Router       /v1/submit-analysis [post]
func (h *Handlers) SubmitAnalysis(c *gin.Context) {
	t, found := tenant(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	idemKey, _ := middleware.GetIdempotencyKey(c)

	if idemKey != "" && middleware.IsReplay(c) {
		sub, found, err := h.submitSvc.Replay(ctx, t, idemKey)
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotent replay failed; treating as new submission")
		} else if found {
			ok(c, http.StatusOK, submitResponse(sub))
			return
		}
	}

	up, err := ingest.Parse(c.Request, h.maxImageBytes)
	if err != nil {
		h.failErr(c, err)
		return
	}

	sub, err := h.submitSvc.Submit(ctx, t, up, idemKey, middleware.RequestIDFrom(c))
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, submitResponse(sub))
}

// GetResult godoc
//
// @ID           getResult
// @Summary      Poll an analysis job
// @Description  Returns the job status. Completed jobs carry the radiograph type, inference version and result; failed jobs carry the error message. Jobs of other tenants are reported as not found.
// @Tags         Jobs
// @Produce      json
// @Security     ApiKeyAuth
// @Param        job_id  query     string  true  "Job ID (UUID)"
// @Success      200     {object}  handlers.ResultEnvelope
// @Failure      400     {object}  handlers.ErrorResponse  "MISSING_JOB_ID"
// @Failure      401     {object}  handlers.ErrorResponse  "MISSING_API_KEY, INVALID_API_KEY, API_KEY_INACTIVE"
// @Failure      404     {object}  handlers.ErrorResponse  "JOB_NOT_FOUND"
// @Failure      429     {object}  handlers.ErrorResponse  "RATE_LIMITED"
// @Failure      500     {object}  handlers.ErrorResponse  "INTERNAL_ERROR"
// @Router       /v1/get-result [get]
func (h *Handlers) GetResult(c *gin.Context) {
	t, found := tenant(c)
	if !found {
		return
	}

	res, err := h.resultSvc.Get(c.Request.Context(), t, strings.TrimSpace(c.Query("job_id")))
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ResultResponse{
		JobID:            res.JobID,
		Status:           res.Status,
		RadiographType:   res.RadiographType,
		InferenceVersion: res.InferenceVersion,
		Result:           res.Result,
		ErrorMessage:     res.ErrorMessage,
	})
}
