package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/ocr-tokens/internal/config"
	"github.com/adverant/nexus/ocr-tokens/internal/logging"
	"github.com/adverant/nexus/ocr-tokens/internal/processor"
	"github.com/adverant/nexus/ocr-tokens/internal/queue"
)

var (
	langFlag   string
	exifRotate bool
	strict     bool
	dpiFlag    int
	pretty     bool
	inline     bool
)

var rootCmd = &cobra.Command{
	Use:           "ocr",
	Short:         "Extract text and word tokens from scanned images and PDFs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var extractCmd = &cobra.Command{
	Use:   "extract <path>",
	Short: "Run OCR on an image or PDF and print tokens and text as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var submitCmd = &cobra.Command{
	Use:   "submit <path>",
	Short: "Queue an image or PDF for the asynq worker and print the job id",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&langFlag, "lang", "", "Language set, e.g. eng+fra (default from OCR_LANGUAGES)")

	extractCmd.Flags().BoolVar(&exifRotate, "exif-rotate", false, "Report page size from the EXIF-oriented image")
	extractCmd.Flags().BoolVar(&strict, "strict", false, "Fail when a recognized word cannot be located in the page text")
	extractCmd.Flags().IntVar(&dpiFlag, "dpi", 0, "PDF rasterization DPI (default from PDF_RASTER_DPI)")
	extractCmd.Flags().BoolVar(&pretty, "pretty", false, "Indent JSON output")

	submitCmd.Flags().BoolVar(&inline, "inline", false, "Send the file contents with the job instead of its path")

	rootCmd.AddCommand(extractCmd, submitCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if langFlag != "" {
		cfg.Languages = config.ParseLanguages(langFlag)
	}
	if cmd.Flags().Changed("exif-rotate") {
		cfg.ExifRotate = exifRotate
	}
	if cmd.Flags().Changed("strict") {
		cfg.StrictAlignment = strict
	}
	if dpiFlag > 0 {
		cfg.RasterDPI = dpiFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logging.Init(logging.Options{Level: cfg.LogLevel, Development: cfg.IsDevelopment()}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logging.Sync()

	recognizer, err := processor.NewTesseractOCR(&processor.TesseractConfig{
		Languages:      cfg.Languages,
		TessdataPrefix: cfg.TessdataPrefix,
		PageSegMode:    cfg.PageSegMode,
	})
	if err != nil {
		return err
	}

	policy := processor.SkipUnlocated
	if cfg.StrictAlignment {
		policy = processor.AbortOnUnlocated
	}

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Recognizer: recognizer,
		Loader:     processor.NewFileLoader(cfg.RasterDPI, cfg.ExifRotate),
		Binarize:   cfg.Binarize,
		Policy:     policy,
		Logger:     logging.NewLogger("processor"),
	})
	if err != nil {
		return err
	}

	result, err := proc.ProcessDocument(cmd.Context(), &processor.ProcessRequest{Path: args[0]})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logging.Sync()

	payload := &queue.JobPayload{Languages: config.ParseLanguages(langFlag)}
	if inline {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		payload.FileBuffer = data
		payload.Filename = filepath.Base(args[0])
	} else {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		payload.Path = abs
	}

	submitter, err := queue.NewSubmitter(cfg.RedisURL, cfg.QueueName)
	if err != nil {
		return err
	}
	defer submitter.Close()

	jobID, err := submitter.Submit(cmd.Context(), payload)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), jobID)
	return nil
}
