// Package bootstrap provides dependency initialization for the slidecast CLI.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/slidecast/internal/config"
	"github.com/maauso/slidecast/internal/event"
	"github.com/maauso/slidecast/internal/frames"
	"github.com/maauso/slidecast/internal/media"
	"github.com/maauso/slidecast/internal/ocr"
	"github.com/maauso/slidecast/internal/scene"
	"github.com/maauso/slidecast/internal/slides"
	"github.com/maauso/slidecast/internal/storage"
	"github.com/maauso/slidecast/internal/ytdlp"
)

// Dependencies holds all initialized collaborators the CLI commands use.
// The tool clients are exposed alongside the service so commands can
// report versions without re-wiring.
type Dependencies struct {
	Slides    *slides.Service
	Processor media.Processor
	YtDlp     ytdlp.Client
	Tesseract *ocr.TesseractRunner
}

// NewDependencies creates and wires all engine dependencies. The observer
// receives pipeline events; pass nil to discard them.
func NewDependencies(cfg *config.Config, logger *slog.Logger, observer event.Observer) (*Dependencies, error) {
	store, err := storage.NewTempStore(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create temp store: %w", err)
	}

	publisher, err := initPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}

	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath)
	ytdlpClient := ytdlp.NewCLIClient(cfg.YtDlpPath)
	tesseract := ocr.NewTesseractRunner(cfg.TesseractPath)

	svc := slides.NewService(slides.ServiceDeps{
		Config:    cfg,
		Detector:  scene.NewDetector(processor, cfg.Workers, cfg.SubprocessTimeout, logger),
		Extractor: frames.NewExtractor(processor, cfg.Workers, cfg.SubprocessTimeout, logger),
		OCR:       ocr.NewBatch(tesseract, cfg.Workers, cfg.SubprocessTimeout, logger),
		Acquirer: slides.NewAcquirer(ytdlpClient, store, cfg.ExtractFormat,
			cfg.SubprocessTimeout, cfg.EffectiveDownloadTimeout(), logger),
		Locks:     slides.NewLockRegistry(),
		Publisher: publisher,
		Observer:  observer,
		Logger:    logger,
	})

	return &Dependencies{
		Slides:    svc,
		Processor: processor,
		YtDlp:     ytdlpClient,
		Tesseract: tesseract,
	}, nil
}

// initPublisher selects the S3 publisher when configured, a no-op
// otherwise.
func initPublisher(cfg *config.Config, logger *slog.Logger) (storage.Publisher, error) {
	if !cfg.S3Enabled() {
		return storage.NopPublisher{}, nil
	}

	pub, err := storage.NewS3Publisher(storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 publisher: %w", err)
	}
	logger.Info("S3 publishing configured",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)
	return pub, nil
}
