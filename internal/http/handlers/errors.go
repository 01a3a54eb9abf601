// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes the wire codes returned in the error envelope and the
// table that maps service and ingest sentinels onto them. Codes are stable,
// UPPER_SNAKE_CASE strings; clients branch on them instead of parsing the
// human-readable message.
//
// Conventions:
//   - Client input errors are 4xx with a specific code.
//   - Upstream failures are 500 with a *_FAILED code or INTERNAL_ERROR and a
//     generic message; detail is logged, never returned.
//   - Anything not in errorTable is INTERNAL_ERROR.
//
// Example response:
//
//	{
//	  "success": false,
//	  "error": { "code": "JOB_NOT_FOUND", "message": "Job not found" },
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6"
//	}
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dental-gateway/internal/ingest"
	"github.com/tbourn/dental-gateway/internal/services"
)

const (
	// Submission
	ErrCodeInvalidContentType = "INVALID_CONTENT_TYPE"
	ErrCodeMultipartParse     = "MULTIPART_PARSE_ERROR"
	ErrCodeMissingImage       = "MISSING_IMAGE"
	ErrCodeImageTooLarge      = "IMAGE_TOO_LARGE"
	ErrCodeInvalidImageType   = "INVALID_IMAGE_TYPE"
	ErrCodeUploadFailed       = "UPLOAD_FAILED"
	ErrCodeJobCreationFailed  = "JOB_CREATION_FAILED"

	// Results
	ErrCodeMissingJobID = "MISSING_JOB_ID"
	ErrCodeJobNotFound  = "JOB_NOT_FOUND"

	// Generic
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

const msgInternal = "An unexpected error occurred"

// errorMapping binds a sentinel to its wire representation.
type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorTable = []errorMapping{
	{ingest.ErrInvalidContentType, http.StatusBadRequest, ErrCodeInvalidContentType, "Content-Type must be multipart/form-data"},
	{ingest.ErrMultipartParse, http.StatusBadRequest, ErrCodeMultipartParse, "Failed to parse multipart form data"},
	{ingest.ErrMissingImage, http.StatusBadRequest, ErrCodeMissingImage, "image is required"},
	{ingest.ErrImageTooLarge, http.StatusRequestEntityTooLarge, ErrCodeImageTooLarge, "Image size exceeds maximum allowed size"},
	{ingest.ErrInvalidImageType, http.StatusBadRequest, ErrCodeInvalidImageType, "Image type must be one of: " + strings.Join(ingest.AllowedImageTypes, ", ")},
	{services.ErrUploadFailed, http.StatusInternalServerError, ErrCodeUploadFailed, "Failed to upload image"},
	{services.ErrJobCreationFailed, http.StatusInternalServerError, ErrCodeJobCreationFailed, "Failed to create analysis job"},
	{services.ErrMissingJobID, http.StatusBadRequest, ErrCodeMissingJobID, "job_id is required"},
	{services.ErrJobNotFound, http.StatusNotFound, ErrCodeJobNotFound, "Job not found"},
}

// lookupError returns the mapping for err, or INTERNAL_ERROR.
func lookupError(err error) errorMapping {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m
		}
	}
	return errorMapping{status: http.StatusInternalServerError, code: ErrCodeInternal, message: msgInternal}
}

// failErr writes the envelope for err. 5xx responses log err with the
// request-scoped logger; the client only sees the mapped message.
func (h *Handlers) failErr(c *gin.Context, err error) {
	m := lookupError(err)
	msg := m.message
	if m.code == ErrCodeImageTooLarge {
		msg = fmt.Sprintf("Image size exceeds maximum allowed size of %s", ingest.FormatLimit(h.maxImageBytes))
	}
	failCause(c, m.status, m.code, msg, err)
}
