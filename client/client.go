// Package client is a small Go SDK for the radiograph gateway. It submits
// images, polls jobs, and normalizes poll responses from every gateway
// revision into one PollResult.
//
// Usage:
//
//	c := client.New("https://api.example.com", os.Getenv("GATEWAY_API_KEY"))
//	sub, err := c.Submit(ctx, f, "scan.jpg", "image/jpeg", client.Refs{PatientRef: "P-1"})
//	...
//	res, err := c.Wait(ctx, sub.JobID, 3*time.Second)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const (
	apiKeyHeader      = "X-API-Key"
	idempotencyHeader = "Idempotency-Key"

	defaultTimeout = 60 * time.Second
	// maxErrorBody bounds how much of a non-JSON error body is kept.
	maxErrorBody = 4 << 10
)

// Client talks to one gateway with one API key. It is safe for concurrent
// use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (60s timeout).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a client for baseURL (scheme and host, optionally a path
// prefix) authenticating with apiKey.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Refs are the optional case references stored with a submission.
type Refs struct {
	PatientRef string
	DoctorRef  string
	ClinicRef  string
}

// Submission is an accepted job.
type Submission struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway: http %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Submit uploads image for analysis.
func (c *Client) Submit(ctx context.Context, image io.Reader, filename, contentType string, refs Refs) (*Submission, error) {
	return c.SubmitIdempotent(ctx, "", image, filename, contentType, refs)
}

// SubmitIdempotent is Submit with an Idempotency-Key. Retrying with the same
// key returns the original job instead of creating a new one.
func (c *Client) SubmitIdempotent(ctx context.Context, key string, image io.Reader, filename, contentType string, refs Refs) (*Submission, error) {
	body, formType, err := encodeSubmission(image, filename, contentType, refs)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/submit-analysis", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", formType)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var env struct {
		Data Submission `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	if env.Data.JobID == "" {
		return nil, errors.New("decode submission: missing job_id")
	}
	return &env.Data, nil
}

// Poll fetches the current state of jobID.
func (c *Client) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	u := c.baseURL + "/v1/get-result?job_id=" + url.QueryEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	res, err := NormalizePoll(raw)
	if err != nil {
		return nil, err
	}
	if res.JobID == "" {
		res.JobID = jobID
	}
	return &res, nil
}

// Wait polls jobID every interval until it is terminal or ctx is done.
func (c *Client) Wait(ctx context.Context, jobID string, interval time.Duration) (*PollResult, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	var last *PollResult
	for {
		res, err := c.Poll(ctx, jobID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return last, ctxErr
			}
			return nil, err
		}
		if res.Terminal() {
			return res, nil
		}
		last = res
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp.StatusCode, raw)
	}
	return raw, nil
}

func decodeAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var env struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		RequestID string `json:"request_id"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Error != nil {
		apiErr.Code, apiErr.Message, apiErr.RequestID = env.Error.Code, env.Error.Message, env.RequestID
		return apiErr
	}
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func encodeSubmission(image io.Reader, filename, contentType string, refs Refs) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for name, v := range map[string]string{
		"patient_ref": refs.PatientRef,
		"doctor_ref":  refs.DoctorRef,
		"clinic_ref":  refs.ClinicRef,
	} {
		if v == "" {
			continue
		}
		if err := mw.WriteField(name, v); err != nil {
			return nil, "", err
		}
	}

	if filename == "" {
		filename = "image.jpg"
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	pw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(pw, image); err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
