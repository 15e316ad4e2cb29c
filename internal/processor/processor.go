/**
 * Document Processor for the OCR token worker
 *
 * Runs one document through the pipeline, page by page and strictly in order:
 * load/rasterize -> preprocess -> recognize -> align. The alignment state of
 * page N is the input state of page N+1.
 */

package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/ocr-tokens/internal/errors"
	"github.com/adverant/nexus/ocr-tokens/internal/logging"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Recognizer Recognizer
	Loader     Loader
	Binarize   bool
	Policy     AlignPolicy
	Logger     *logging.Logger
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	JobID     string
	Path      string
	Languages []string // empty selects the recognizer default
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	recognizer Recognizer
	loader     Loader
	binarize   bool
	policy     AlignPolicy
	logger     *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}

	if cfg.Loader == nil {
		return nil, fmt.Errorf("loader is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &DocumentProcessor{
		recognizer: cfg.Recognizer,
		loader:     cfg.Loader,
		binarize:   cfg.Binarize,
		policy:     cfg.Policy,
		logger:     logger,
	}, nil
}

// ProcessDocument extracts the tokens and full text of the document at
// req.Path. Any page failure aborts the whole run.
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	startTime := time.Now()
	runID := uuid.NewString()
	log := p.logger.With("runId", runID, "jobId", req.JobID, "path", req.Path)

	src, err := p.loader.Open(req.Path)
	if err != nil {
		return nil, tagJob(err, req.JobID)
	}
	defer src.Close()

	numPages := src.NumPages()
	log.Info("Starting document run", "kind", src.Kind().String(), "pages", numPages)

	result := &ProcessResult{
		RunID:  runID,
		JobID:  req.JobID,
		Tokens: []Token{},
		Pages:  make([]PageReport, 0, numPages),
	}

	languages := req.Languages
	if len(languages) == 0 {
		languages = p.recognizer.Languages()
	}

	var state AlignState
	for i := 0; i < numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("document run interrupted before page %d: %w", i+1, err)
		}

		pageImg, err := src.Page(i)
		if err != nil {
			return nil, tagJob(err, req.JobID)
		}

		prepared := Preprocess(pageImg.Image, p.binarize)

		ocrPage, err := p.recognizer.Recognize(ctx, prepared, languages)
		if err != nil {
			return nil, errors.NewRecognitionError(pageImg.Number, strings.Join(languages, "+"), err).WithJobID(req.JobID)
		}
		ocrPage.PageNumber = pageImg.Number

		aligned, err := Align(state, ocrPage, pageImg.Size, p.policy)
		if err != nil {
			return nil, tagJob(err, req.JobID)
		}
		state = aligned.State
		result.Tokens = append(result.Tokens, aligned.Tokens...)

		report := PageReport{
			PageNum:    pageImg.Number,
			PageSize:   pageImg.Size,
			Confidence: ocrPage.Confidence,
			RawWords:   len(ocrPage.Words),
			Tokens:     len(aligned.Tokens),
			Filtered:   aligned.Filtered,
			Skipped:    aligned.Skipped,
		}
		result.Pages = append(result.Pages, report)

		log.Info("Page aligned",
			"page", report.PageNum,
			"confidence", report.Confidence,
			"rawWords", report.RawWords,
			"tokens", report.Tokens,
			"filtered", report.Filtered,
			"skipped", len(report.Skipped))
		if len(report.Skipped) > 0 {
			log.Debug("Words not found in page text", "page", report.PageNum, "words", report.Skipped)
		}
	}

	result.Text = state.Text
	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	log.Info("Document run complete",
		"tokens", len(result.Tokens),
		"chars", len([]rune(result.Text)),
		"durationMs", result.ProcessingTimeMs)

	return result, nil
}

// tagJob attaches the job id to structured errors.
func tagJob(err error, jobID string) error {
	if pe, ok := err.(*errors.ProcessingError); ok && jobID != "" {
		return pe.WithJobID(jobID)
	}
	return err
}
