package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adverant/nexus/ocr-tokens/internal/errors"
	"github.com/adverant/nexus/ocr-tokens/internal/logging"
	"github.com/adverant/nexus/ocr-tokens/internal/processor"
)

const defaultProcessingTimeout = 300000 * time.Millisecond

// JobPayload contains the actual job data
type JobPayload struct {
	JobID      string   `json:"jobId"`
	Path       string   `json:"path,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	Languages  []string `json:"languages,omitempty"`
	FileBuffer []byte   `json:"fileBuffer,omitempty"`
}

// UnmarshalJSON implements custom JSON unmarshaling for JobPayload to handle Buffer serialization
// Supports both base64 string format and Node.js Buffer object format
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	// Create alias type to avoid recursion
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	if aux.FileBuffer == nil {
		return nil
	}

	switch v := aux.FileBuffer.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		p.FileBuffer = decoded

	case map[string]interface{}:
		bufferType, ok := v["type"].(string)
		if !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.FileBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.FileBuffer[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// Validate checks that the payload names a document to process.
func (p *JobPayload) Validate() error {
	if p.JobID == "" {
		return errors.NewInvalidJobError("", "jobId is required")
	}
	if p.Path == "" && len(p.FileBuffer) == 0 {
		return errors.NewInvalidJobError(p.JobID, "either path or fileBuffer is required")
	}
	if p.Path == "" && filepath.Ext(p.Filename) == "" {
		return errors.NewInvalidJobError(p.JobID, "filename with extension is required with fileBuffer")
	}
	return nil
}

// jobRunner runs one payload through the document processor under a timeout.
type jobRunner struct {
	processor processor.DocumentProcessorInterface
	tempDir   string
	timeout   time.Duration
	logger    *logging.Logger
}

func newJobRunner(proc processor.DocumentProcessorInterface, tempDir string, timeoutMs int64, logger *logging.Logger) *jobRunner {
	timeout := defaultProcessingTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &jobRunner{processor: proc, tempDir: tempDir, timeout: timeout, logger: logger}
}

func (r *jobRunner) run(ctx context.Context, job *JobPayload) (*processor.ProcessResult, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	path, cleanup, err := r.materialize(job)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	processCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	startTime := time.Now()
	result, err := r.processor.ProcessDocument(processCtx, &processor.ProcessRequest{
		JobID:     job.JobID,
		Path:      path,
		Languages: job.Languages,
	})
	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			r.logger.Warn("Job timed out", "jobId", job.JobID, "elapsed", time.Since(startTime), "timeout", r.timeout)
			return nil, errors.NewProcessingTimeoutError(job.JobID, r.timeout, err)
		}
		return nil, err
	}
	return result, nil
}

// materialize returns a path for the job's document, writing inline buffers
// to the temp dir under the job's file extension.
func (r *jobRunner) materialize(job *JobPayload) (string, func(), error) {
	if job.Path != "" {
		return job.Path, func() {}, nil
	}

	f, err := os.CreateTemp(r.tempDir, "ocr-job-*"+filepath.Ext(job.Filename))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := f.Write(job.FileBuffer); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}

// errorDetails flattens an error for event payloads.
func errorDetails(err error) map[string]interface{} {
	var pe *errors.ProcessingError
	if stderrors.As(err, &pe) {
		return pe.ToMap()
	}
	return map[string]interface{}{"message": err.Error()}
}
