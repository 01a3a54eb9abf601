package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Canonical job statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrMalformedPoll is returned when a poll body carries no status.
var ErrMalformedPoll = errors.New("poll response has no status")

// PollResult is the canonical view of a poll response.
type PollResult struct {
	JobID            string          `json:"job_id"`
	Status           string          `json:"status"`
	RadiographType   string          `json:"radiograph_type,omitempty"`
	InferenceVersion string          `json:"inference_version,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
}

// Terminal reports whether the job will not change any more.
func (p PollResult) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

type pollFields struct {
	JobID            *string         `json:"job_id"`
	Status           *string         `json:"status"`
	RadiographType   *string         `json:"radiograph_type"`
	InferenceVersion *string         `json:"inference_version"`
	Result           json.RawMessage `json:"result"`
	ErrorMessage     *string         `json:"error_message"`
}

type pollBody struct {
	pollFields
	Data  *pollFields `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NormalizePoll maps any poll response shape the gateway has produced to a
// PollResult.
//
// Compatibility table:
//
//	shape                                   source of each field
//	{success, data:{status, ...}}           data.*
//	{status, result, error_message, ...}    top level
//	both present                            top level wins, data.* fills gaps
//	status "error"                          reported as "failed"
//	result null                             no result
//	{success:false, error:{code, message}}  *APIError
func NormalizePoll(body []byte) (PollResult, error) {
	var b pollBody
	if err := json.Unmarshal(body, &b); err != nil {
		return PollResult{}, fmt.Errorf("decode poll: %w", err)
	}

	data := b.Data
	if data == nil {
		data = &pollFields{}
	}
	status := first(b.Status, data.Status)
	if status == "" {
		if b.Error != nil {
			return PollResult{}, &APIError{Code: b.Error.Code, Message: b.Error.Message}
		}
		return PollResult{}, ErrMalformedPoll
	}
	if status == "error" {
		status = StatusFailed
	}

	result := b.Result
	if isAbsent(result) {
		result = data.Result
	}
	if isAbsent(result) {
		result = nil
	}

	return PollResult{
		JobID:            first(b.JobID, data.JobID),
		Status:           status,
		RadiographType:   first(b.RadiographType, data.RadiographType),
		InferenceVersion: first(b.InferenceVersion, data.InferenceVersion),
		Result:           result,
		ErrorMessage:     first(b.ErrorMessage, data.ErrorMessage),
	}, nil
}

// first returns the first non-empty value.
func first(vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func isAbsent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
