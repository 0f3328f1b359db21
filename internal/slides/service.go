package slides

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/slidecast/internal/config"
	"github.com/maauso/slidecast/internal/event"
	"github.com/maauso/slidecast/internal/frames"
	"github.com/maauso/slidecast/internal/ocr"
	"github.com/maauso/slidecast/internal/scene"
	"github.com/maauso/slidecast/internal/source"
	"github.com/maauso/slidecast/internal/storage"
	"github.com/maauso/slidecast/internal/timeline"
)

// ServiceDeps bundles the collaborators a Service needs. Observer and
// Publisher are optional; nil selects the no-op implementations.
type ServiceDeps struct {
	Config    *config.Config
	Detector  *scene.Detector
	Extractor *frames.Extractor
	OCR       *ocr.Batch
	Acquirer  *Acquirer
	Locks     *LockRegistry
	Publisher storage.Publisher
	Observer  event.Observer
	Logger    *slog.Logger
}

// Service runs the extraction pipeline end to end for one source.
type Service struct {
	cfg       *config.Config
	detector  *scene.Detector
	extractor *frames.Extractor
	ocr       *ocr.Batch
	acquirer  *Acquirer
	locks     *LockRegistry
	publisher storage.Publisher
	observer  event.Observer
	logger    *slog.Logger
	validate  *validator.Validate

	// lookPath is swapped in tests to fake tool presence.
	lookPath func(string) (string, error)
}

// NewService creates a Service from its dependencies.
func NewService(deps ServiceDeps) *Service {
	observer := deps.Observer
	if observer == nil {
		observer = event.NopObserver{}
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = storage.NopPublisher{}
	}
	return &Service{
		cfg:       deps.Config,
		detector:  deps.Detector,
		extractor: deps.Extractor,
		ocr:       deps.OCR,
		acquirer:  deps.Acquirer,
		locks:     deps.Locks,
		publisher: publisher,
		observer:  observer,
		logger:    deps.Logger,
		validate:  validator.New(),
		lookPath:  exec.LookPath,
	}
}

// Run extracts slides for src into settings.OutputDir. A valid manifest
// already present in the directory is served as-is unless RefreshCache is
// set or the cached run lacks text a caller now wants. Concurrent runs
// against the same directory are serialized.
func (s *Service) Run(ctx context.Context, src *source.Source, settings Settings) (*Result, error) {
	if src == nil {
		return nil, ErrSourceRequired
	}
	settings = settings.withDefaults()
	if err := s.validate.Struct(settings); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	outDir, err := filepath.Abs(settings.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	settings.OutputDir = outDir

	release, err := s.locks.Acquire(ctx, outDir)
	if err != nil {
		return nil, err
	}
	defer release()

	if !settings.RefreshCache {
		if res, ok := s.tryCache(outDir, settings); ok {
			return res, nil
		}
	}

	ocrAvailable, err := s.checkTools(src, settings.OCR)
	if err != nil {
		return nil, err
	}

	res := &Result{
		SourceURL:         src.URL,
		SourceKind:        string(src.Kind),
		SourceID:          src.ID,
		SlidesDir:         outDir,
		SceneThreshold:    settings.SceneThreshold,
		AutoTuneThreshold: settings.AutoTuneThreshold,
		MaxSlides:         settings.MaxSlides,
		MinSlideDuration:  settings.MinSlideDuration,
		OCRRequested:      settings.OCR,
		OCRAvailable:      ocrAvailable,
	}

	if err := resetDir(outDir); err != nil {
		return nil, fmt.Errorf("reset output dir: %w", err)
	}

	s.status("acquire", "acquiring media", -1)
	detAcq, err := s.acquireDetection(ctx, src, res)
	if err != nil {
		return nil, err
	}
	defer detAcq.Cleanup()
	detectInput := detAcq.MediaPath

	s.status("probe", "probing media", -1)
	info := s.detector.Probe(ctx, detectInput)
	duration := 0.0
	if info.DurationSeconds != nil {
		duration = *info.DurationSeconds
	}

	threshold := settings.SceneThreshold
	if settings.AutoTuneThreshold {
		s.status("calibrate", "auto-tuning scene threshold", -1)
		cal, calErr := s.detector.Calibrate(ctx, detectInput, duration, s.cfg.CalibrationSamples)
		switch {
		case calErr != nil && ctx.Err() != nil:
			return nil, calErr
		case calErr != nil:
			s.warn(res, fmt.Sprintf("threshold auto-tune failed: %v; using %.2f", calErr, threshold))
			res.AutoTune = AutoTune{Enabled: true, ChosenThreshold: threshold, Strategy: StrategyNone}
		default:
			threshold = cal.Threshold
			res.AutoTune = AutoTune{
				Enabled:         true,
				ChosenThreshold: cal.Threshold,
				Confidence:      cal.Confidence,
				Strategy:        StrategyHash,
			}
			s.logger.Info("auto-tuned scene threshold",
				"threshold", cal.Threshold,
				"confidence", cal.Confidence,
			)
		}
	}

	s.status("detect", "detecting scene changes", -1)
	outcome, err := s.detector.DetectWithRetry(ctx, detectInput, threshold, duration)
	if err != nil {
		return nil, err
	}

	// A silent stream is not proof of a static video: partial streams and
	// picky CDNs can starve the decoder. One full download settles it.
	downloadedPath := ""
	if len(outcome.Timestamps) == 0 && detAcq.Streamed {
		s.warn(res, "no scenes found on stream; falling back to full download")
		dl, dlErr := s.acquirer.Download(ctx, src)
		if dlErr != nil {
			return nil, &AcquisitionError{URL: src.URL, Err: dlErr}
		}
		defer dl.Cleanup()
		downloadedPath = dl.MediaPath
		detectInput = dl.MediaPath

		if duration <= 0 {
			info = s.detector.Probe(ctx, detectInput)
			if info.DurationSeconds != nil {
				duration = *info.DurationSeconds
			}
		}
		outcome, err = s.detector.DetectWithRetry(ctx, detectInput, threshold, duration)
		if err != nil {
			return nil, err
		}
	}

	if outcome.RetryUsed {
		s.warn(res, fmt.Sprintf("no scenes at threshold %.2f; retry used lower threshold %.2f",
			threshold, outcome.EffectiveThreshold))
	}
	res.SceneThreshold = outcome.EffectiveThreshold

	if len(outcome.Timestamps) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrZeroScenes
	}

	selected, dropped := timeline.Select(outcome.Timestamps, duration, settings.MinSlideDuration, settings.MaxSlides)
	if dropped > 0 {
		s.warn(res, fmt.Sprintf("slide cap reached: dropped %d timestamps beyond the first %d",
			dropped, settings.MaxSlides))
	}
	segments := timeline.BuildSegments(outcome.Timestamps, duration)

	s.observer.Publish(event.TimelineReady{SourceID: src.ID, Timestamps: selected})

	extractInput, err := s.extractionInput(ctx, src, res, detAcq, downloadedPath, detectInput)
	if err != nil {
		return nil, err
	}

	total := len(selected)
	s.status("extract", fmt.Sprintf("extracting %d frames", total), 0)

	var done atomic.Int64
	progress := &monotonicProgress{}
	extracted := s.extractor.Extract(ctx, extractInput, outDir, selected, segments, func(f frames.Frame) {
		n := done.Add(1)
		s.observer.Publish(event.SlideChunk{
			Index:     f.Index,
			Total:     total,
			Timestamp: f.Timestamp,
			ImagePath: f.Path,
		})
		if pct, ok := progress.Advance(float64(n) / float64(total) * 100); ok {
			s.status("extract", fmt.Sprintf("extracted %d/%d frames", n, total), pct)
		}
	})

	if len(extracted) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrZeroFrames
	}
	if len(extracted) < total {
		s.warn(res, fmt.Sprintf("extracted %d of %d selected frames", len(extracted), total))
		s.publishPlaceholders(selected, extracted, total)
	}

	s.status("refine", "refining low-quality frames", -1)
	refined := s.extractor.Refine(ctx, extractInput, extracted, segments, func(f frames.Frame) {
		s.observer.Publish(event.SlideChunk{
			Index:        f.Index,
			Total:        total,
			Timestamp:    f.Timestamp,
			ImagePath:    f.Path,
			ImageVersion: f.Version,
		})
	})

	capped, removed := frames.Cap(refined, settings.MaxSlides, s.logger)
	if removed > 0 {
		s.warn(res, fmt.Sprintf("trimmed %d extra frames to honor the slide cap", removed))
	}

	res.Slides = make([]Slide, 0, len(capped))
	for _, f := range capped {
		res.Slides = append(res.Slides, Slide{
			Index:        f.Index,
			Timestamp:    f.Timestamp,
			ImagePath:    f.Path,
			ImageVersion: f.Version,
			Brightness:   f.Brightness,
			Contrast:     f.Contrast,
		})
	}

	if settings.OCR {
		s.status("ocr", fmt.Sprintf("recognizing text on %d slides", len(res.Slides)), -1)
		paths := make([]string, len(res.Slides))
		for i, sl := range res.Slides {
			paths[i] = sl.ImagePath
		}
		texts := s.ocr.Run(ctx, paths)
		for i := range res.Slides {
			res.Slides[i].OCRText = texts[i].Content
			res.Slides[i].OCRConfidence = texts[i].Confidence
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := WriteManifest(outDir, *res); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if urls, pubErr := s.publisher.PublishDir(ctx, src.ID, outDir); pubErr != nil {
		s.warn(res, fmt.Sprintf("publish failed: %v", pubErr))
	} else {
		res.UploadedURLs = urls
	}

	s.status("done", fmt.Sprintf("extracted %d slides", len(res.Slides)), 100)
	s.logger.Info("extraction complete",
		"source", src.ID,
		"slides", len(res.Slides),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// tryCache serves a previously generated directory when its manifest is
// valid and covers what the caller asked for. Cache hits replay the
// timeline and slide events so streaming consumers see the same sequence
// as a fresh run.
func (s *Service) tryCache(dir string, settings Settings) (*Result, bool) {
	res, err := ReadManifest(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("ignoring unusable manifest", "dir", dir, "error", err)
		}
		return nil, false
	}
	if !res.SatisfiesOCR(settings.OCR) {
		s.logger.Info("cached result lacks recognized text, regenerating", "dir", dir)
		return nil, false
	}

	res.FromCache = true
	s.logger.Info("serving cached result", "dir", dir, "slides", len(res.Slides))

	s.observer.Publish(event.TimelineReady{SourceID: res.SourceID, Timestamps: timestampsOf(res.Slides)})
	for _, sl := range res.Slides {
		s.observer.Publish(event.SlideChunk{
			Index:        sl.Index,
			Total:        len(res.Slides),
			Timestamp:    sl.Timestamp,
			ImagePath:    sl.ImagePath,
			ImageVersion: sl.ImageVersion,
		})
	}
	s.status("done", fmt.Sprintf("served %d slides from cache", len(res.Slides)), 100)
	return res, true
}

// checkTools verifies every external binary the run will shell out to,
// before any work starts. Tesseract is fatal only when text recognition
// was requested; its presence is still reported either way.
func (s *Service) checkTools(src *source.Source, wantOCR bool) (bool, error) {
	type tool struct {
		name string
		path string
		hint string
	}
	required := []tool{
		{name: "ffmpeg", path: s.cfg.FFmpegPath, hint: "install ffmpeg"},
		{name: "ffprobe", path: s.cfg.FFprobePath, hint: "install ffmpeg (ffprobe ships with it)"},
	}
	if src.Kind == source.KindYouTube {
		required = append(required, tool{name: "yt-dlp", path: s.cfg.YtDlpPath, hint: "install yt-dlp for YouTube sources"})
	}
	for _, t := range required {
		if err := s.lookupTool(t.name, t.path); err != nil {
			return false, &MissingToolError{Tool: t.name, Hint: t.hint}
		}
	}

	ocrAvailable := s.lookupTool("tesseract", s.cfg.TesseractPath) == nil
	if wantOCR && !ocrAvailable {
		return false, &MissingToolError{Tool: "tesseract", Hint: "install tesseract or skip OCR"}
	}
	return ocrAvailable, nil
}

func (s *Service) lookupTool(name, configured string) error {
	bin := configured
	if bin == "" {
		bin = name
	}
	_, err := s.lookPath(bin)
	return err
}

// acquireDetection obtains the media scene detection runs on. YouTube
// sources prefer a cheap low-resolution stream when configured, falling
// back to a full download; direct sources pass through untouched.
func (s *Service) acquireDetection(ctx context.Context, src *source.Source, res *Result) (*Acquisition, error) {
	if src.Kind == source.KindDirect {
		return s.acquirer.Stream(ctx, src, "")
	}

	if s.cfg.PreferStream {
		acq, err := s.acquirer.Stream(ctx, src, s.cfg.DetectFormat)
		if err == nil {
			return acq, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		s.warn(res, fmt.Sprintf("stream resolution failed: %v; falling back to download", err))
	}

	acq, err := s.acquirer.Download(ctx, src)
	if err != nil {
		return nil, &AcquisitionError{URL: src.URL, Err: err}
	}
	return acq, nil
}

// extractionInput picks the media stills are pulled from. A downloaded
// file wins; otherwise streamed YouTube sources re-resolve at the higher
// extraction quality, keeping the detection stream on failure.
func (s *Service) extractionInput(ctx context.Context, src *source.Source, res *Result, detAcq *Acquisition, downloadedPath, detectInput string) (string, error) {
	if downloadedPath != "" {
		return downloadedPath, nil
	}
	if src.Kind != source.KindYouTube || !detAcq.Streamed {
		return detectInput, nil
	}

	acq, err := s.acquirer.Stream(ctx, src, s.cfg.ExtractFormat)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		s.warn(res, fmt.Sprintf("could not resolve extraction stream: %v; reusing detection media", err))
		return detectInput, nil
	}
	return acq.MediaPath, nil
}

func (s *Service) publishPlaceholders(selected []float64, extracted []frames.Frame, total int) {
	got := make(map[float64]bool, len(extracted))
	for _, f := range extracted {
		got[f.Timestamp] = true
	}
	for i, ts := range selected {
		if got[ts] {
			continue
		}
		s.observer.Publish(event.SlideChunk{
			Index:       i + 1,
			Total:       total,
			Timestamp:   ts,
			Placeholder: true,
		})
	}
}

func (s *Service) status(stage, msg string, pct float64) {
	s.observer.Publish(event.Status{Stage: stage, Message: msg, Percent: pct})
}

// warn records a warning on the result, logs it and mirrors it to the
// event stream so front ends can surface degraded runs.
func (s *Service) warn(res *Result, msg string) {
	res.warn(msg)
	s.logger.Warn(msg)
	s.observer.Publish(event.Log{Level: slog.LevelWarn, Message: msg})
}

func timestampsOf(slides []Slide) []float64 {
	out := make([]float64, len(slides))
	for i, sl := range slides {
		out[i] = sl.Timestamp
	}
	return out
}

// monotonicProgress gates status percentages so concurrent extraction
// workers never publish a regressing progress bar.
type monotonicProgress struct {
	mu   sync.Mutex
	last float64
}

// Advance returns the new percentage and true when pct moves the bar
// forward, or the current high-water mark and false when it does not.
func (p *monotonicProgress) Advance(pct float64) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pct <= p.last {
		return p.last, false
	}
	p.last = pct
	return pct, true
}
