package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the OCR token worker
 *
 * Every failure surfaced by a document run is a *ProcessingError carrying a
 * code, so callers can classify it without string matching.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors
	ErrorDecodeFailed      ErrorCode = "DECODE_FAILED"
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrorInvalidJob        ErrorCode = "INVALID_JOB"

	// Processing errors
	ErrorOCRFailed         ErrorCode = "OCR_FAILED"
	ErrorAlignmentFailed   ErrorCode = "ALIGNMENT_FAILED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// WithJobID returns the error tagged with the job it belongs to.
func (e *ProcessingError) WithJobID(jobID string) *ProcessingError {
	e.JobID = jobID
	return e
}

// Factory functions for common errors

func NewDecodeError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDecodeFailed,
		Message:   fmt.Sprintf("Failed to load %s", path),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path": path,
		},
		Cause: cause,
	}
}

func NewPageDecodeError(path string, pageNum int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDecodeFailed,
		Message:   fmt.Sprintf("Failed to rasterize page %d of %s", pageNum, path),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path":     path,
			"page_num": pageNum,
		},
		Cause: cause,
	}
}

func NewUnsupportedFormatError(path string, ext string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported file format: %q", ext),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path":      path,
			"extension": ext,
		},
	}
}

func NewRecognitionError(pageNum int, languages string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed on page %d", pageNum),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page_num":  pageNum,
			"languages": languages,
		},
		Cause: cause,
	}
}

func NewAlignmentError(pageNum int, word string, offset int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorAlignmentFailed,
		Message:   fmt.Sprintf("Word %q on page %d not found in text from offset %d", word, pageNum, offset),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page_num": pageNum,
			"word":     word,
			"offset":   offset,
		},
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewInvalidJobError(jobID string, reason string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidJob,
		Message:   fmt.Sprintf("Invalid job: %s", reason),
		JobID:     jobID,
		Timestamp: time.Now(),
	}
}

// IsCode reports whether any error in err's chain is a ProcessingError with
// the given code.
func IsCode(err error, code ErrorCode) bool {
	var pe *ProcessingError
	if !stderrors.As(err, &pe) {
		return false
	}
	return pe.Code == code
}

// ToMap converts error to map for event payloads
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.JobID != "" {
		result["job_id"] = e.JobID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
