package domain

import "encoding/json"

// ResultLocation says where a completed job's result body lives.
// It is either an InlineResult or a BlobResult.
type ResultLocation interface {
	isResultLocation()
}

// InlineResult is a result payload stored directly on the job row.
// Older jobs written before blob results existed only carry this form.
type InlineResult struct {
	JSON json.RawMessage
}

// BlobResult points at a result object in the results bucket.
type BlobResult struct {
	Path string
}

func (InlineResult) isResultLocation() {}
func (BlobResult) isResultLocation()   {}

// ResultLocation resolves where the job's result lives. A non-empty result
// path always wins over an inline payload. It returns nil when the job has
// no result at all.
func (j *Job) ResultLocation() ResultLocation {
	if j.ResultPath != nil && *j.ResultPath != "" {
		return BlobResult{Path: *j.ResultPath}
	}
	if len(j.ResultJSON) > 0 && string(j.ResultJSON) != "null" {
		return InlineResult{JSON: json.RawMessage(j.ResultJSON)}
	}
	return nil
}
