// Package ingest streams a multipart/form-data submission into a validated
// image payload plus optional case references. Parts are consumed one at a
// time; the image is only held in memory up to the configured ceiling.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// Validation failures, in the order they are checked.
var (
	ErrInvalidContentType = errors.New("content type is not multipart/form-data")
	ErrMultipartParse     = errors.New("malformed multipart body")
	ErrMissingImage       = errors.New("image part is missing")
	ErrImageTooLarge      = errors.New("image exceeds size limit")
	ErrInvalidImageType   = errors.New("image type not allowed")
)

// Form field names.
const (
	FieldImage      = "image"
	FieldPatientRef = "patient_ref"
	FieldDoctorRef  = "doctor_ref"
	FieldClinicRef  = "clinic_ref"
)

const (
	defaultContentType = "application/octet-stream"
	defaultFilename    = "image.jpg"

	// MaxTextPart bounds a single text part. A longer part is rejected as
	// ErrMultipartParse; stored references are never cut.
	MaxTextPart = 64 << 10
)

// AllowedImageTypes is the accepted set of declared media types.
var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

// Upload is a validated submission.
type Upload struct {
	Data        []byte
	ContentType string
	Filename    string

	PatientRef string
	DoctorRef  string
	ClinicRef  string
}

// Parse reads r's multipart body. maxImageBytes is the largest accepted
// image; exactly maxImageBytes passes, one byte more is ErrImageTooLarge.
//
// Unknown fields are skipped. When several image parts are sent the last one
// counts, including for the size check; earlier parts are read and dropped.
// References are trimmed and otherwise kept as sent.
func Parse(r *http.Request, maxImageBytes int64) (*Upload, error) {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "multipart/form-data" {
		return nil, ErrInvalidContentType
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMultipartParse, err)
	}

	var (
		up        Upload
		hasImage  bool
		tooLarge  bool
		prevImage bool
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// NextPart drains the previous part; a cap hit here is the
			// image's fault only if that part was an oversize image.
			return nil, readError(err, tooLarge && prevImage)
		}
		prevImage = part.FormName() == FieldImage

		switch part.FormName() {
		case FieldImage:
			data, err := io.ReadAll(io.LimitReader(part, maxImageBytes+1))
			if err != nil {
				// The image has not passed the ceiling yet, so a cap hit
				// here is spent on earlier parts.
				return nil, readError(err, false)
			}
			hasImage = true
			tooLarge = int64(len(data)) > maxImageBytes
			if tooLarge {
				data = nil
			}
			up.Data = data
			up.ContentType = partContentType(part)
			up.Filename = part.FileName()
			if up.Filename == "" {
				up.Filename = defaultFilename
			}
		case FieldPatientRef:
			if up.PatientRef, err = readText(part); err != nil {
				return nil, err
			}
		case FieldDoctorRef:
			if up.DoctorRef, err = readText(part); err != nil {
				return nil, err
			}
		case FieldClinicRef:
			if up.ClinicRef, err = readText(part); err != nil {
				return nil, err
			}
		}
	}

	if !hasImage {
		return nil, ErrMissingImage
	}
	if tooLarge {
		return nil, ErrImageTooLarge
	}
	if !IsAllowedImageType(up.ContentType) {
		return nil, ErrInvalidImageType
	}
	return &up, nil
}

// IsAllowedImageType reports whether ct is in AllowedImageTypes.
func IsAllowedImageType(ct string) bool {
	for _, a := range AllowedImageTypes {
		if ct == a {
			return true
		}
	}
	return false
}

// FormatLimit renders a byte ceiling the way error messages show it.
func FormatLimit(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	if n >= 1<<10 && n%(1<<10) == 0 {
		return fmt.Sprintf("%dKB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}

func partContentType(p *multipart.Part) string {
	ct := p.Header.Get("Content-Type")
	if ct == "" {
		return defaultContentType
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

func readText(p *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(p, MaxTextPart+1))
	if err != nil {
		return "", readError(err, false)
	}
	if len(b) > MaxTextPart {
		return "", fmt.Errorf("%w: field %q exceeds %s", ErrMultipartParse, p.FormName(), FormatLimit(MaxTextPart))
	}
	return strings.TrimSpace(string(b)), nil
}

// readError classifies a failure while streaming the body. Hitting the
// request body cap is ErrImageTooLarge only when the image already exceeded
// its ceiling; otherwise the overflow came from other parts and the body is
// rejected as malformed.
func readError(err error, imageOversize bool) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		if imageOversize {
			return ErrImageTooLarge
		}
		return fmt.Errorf("%w: request body exceeds %s", ErrMultipartParse, FormatLimit(mbe.Limit))
	}
	return fmt.Errorf("%w: %v", ErrMultipartParse, err)
}
