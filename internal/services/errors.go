// Package services defines the business logic of the gateway: credential
// verification and administration, analysis submission, result retrieval,
// and usage accounting.
//
// This file centralizes the service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing codes and HTTP status codes is performed at the handler
// layer.
package services

import "errors"

// Credential errors.
var (
	// ErrMissingAPIKey is returned when no secret was presented at all.
	ErrMissingAPIKey = errors.New("api key is required")

	// ErrInvalidAPIKey is returned when the presented secret matches no
	// credential. It never reveals whether a similar key exists.
	ErrInvalidAPIKey = errors.New("invalid api key")

	// ErrAPIKeyInactive is returned when the secret matches a credential that
	// has been revoked.
	ErrAPIKeyInactive = errors.New("api key is inactive")

	// ErrKeyNotFound is returned by key administration for an unknown key id.
	ErrKeyNotFound = errors.New("api key not found")

	// ErrInvalidCompany is returned when a key is requested without an owner.
	ErrInvalidCompany = errors.New("company id is required")
)

// Job errors.
var (
	// ErrUploadFailed indicates that the source image could not be written to
	// object storage. No job row exists for the call.
	ErrUploadFailed = errors.New("failed to upload image")

	// ErrJobCreationFailed indicates that the job row could not be inserted
	// after a successful upload. The uploaded image has been cleaned up on a
	// best-effort basis.
	ErrJobCreationFailed = errors.New("failed to create analysis job")

	// ErrMissingJobID is returned when a result is requested without an id.
	ErrMissingJobID = errors.New("job_id is required")

	// ErrJobNotFound indicates that the job does not exist or belongs to
	// another tenant. The two cases are deliberately indistinguishable.
	ErrJobNotFound = errors.New("job not found")
)
