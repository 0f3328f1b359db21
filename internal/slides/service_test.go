package slides

import (
	"context"
	"errors"
	"image"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/slidecast/internal/config"
	"github.com/maauso/slidecast/internal/event"
	"github.com/maauso/slidecast/internal/frames"
	"github.com/maauso/slidecast/internal/media"
	"github.com/maauso/slidecast/internal/ocr"
	"github.com/maauso/slidecast/internal/scene"
	"github.com/maauso/slidecast/internal/source"
	"github.com/maauso/slidecast/internal/storage"
)

// fakePipelineProc stands in for ffmpeg/ffprobe: a 120s video with scene
// changes at fixed times, healthy frame stats and instant extraction.
type fakePipelineProc struct {
	mu           sync.Mutex
	duration     float64
	cuts         []float64
	detectCalls  int
	extractCalls int

	detectFn  func(input string, threshold, start, duration float64) ([]float64, error)
	extractFn func(input string, seekBase, offset float64, outPath string) (media.FrameStats, error)
}

var _ media.Processor = (*fakePipelineProc)(nil)

func (p *fakePipelineProc) Probe(context.Context, string) (media.VideoInfo, error) {
	if p.duration <= 0 {
		return media.VideoInfo{}, nil
	}
	d := p.duration
	return media.VideoInfo{DurationSeconds: &d}, nil
}

func (p *fakePipelineProc) DetectScenes(_ context.Context, input string, threshold, start, duration float64) ([]float64, error) {
	p.mu.Lock()
	p.detectCalls++
	p.mu.Unlock()
	if p.detectFn != nil {
		return p.detectFn(input, threshold, start, duration)
	}
	return cutsInWindow(p.cuts, start, duration), nil
}

func (p *fakePipelineProc) GrabFrame(context.Context, string, float64, int) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 8, 8)), nil
}

func (p *fakePipelineProc) ExtractFrame(_ context.Context, input string, seekBase, offset float64, outPath string) (media.FrameStats, error) {
	p.mu.Lock()
	p.extractCalls++
	p.mu.Unlock()
	if p.extractFn != nil {
		return p.extractFn(input, seekBase, offset, outPath)
	}
	if err := os.WriteFile(outPath, []byte("png"), 0o600); err != nil {
		return media.FrameStats{}, err
	}
	at := offset
	return media.FrameStats{Brightness: 0.8, Contrast: 0.5, ReportedTime: &at}, nil
}

func (p *fakePipelineProc) Version(context.Context) (string, error) {
	return "ffmpeg version 6.0", nil
}

func (p *fakePipelineProc) counts() (detect, extract int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detectCalls, p.extractCalls
}

// cutsInWindow mimics one ffmpeg scene pass: absolute cut times inside
// [start, start+duration) reported relative to the window start.
func cutsInWindow(cuts []float64, start, duration float64) []float64 {
	var out []float64
	for _, c := range cuts {
		if c < start {
			continue
		}
		if duration > 0 && c >= start+duration {
			continue
		}
		out = append(out, c-start)
	}
	return out
}

type fakeOCRRunner struct {
	mu    sync.Mutex
	calls int
}

var _ ocr.Runner = (*fakeOCRRunner)(nil)

func (f *fakeOCRRunner) Recognize(_ context.Context, imagePath string) (ocr.Text, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return ocr.Text{Content: "Agenda " + filepath.Base(imagePath), Confidence: 0.9}, nil
}

func (f *fakeOCRRunner) Version(context.Context) (string, error) {
	return "tesseract 5.3.0", nil
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []string
	urls  []string
	err   error
}

var _ storage.Publisher = (*fakePublisher)(nil)

func (f *fakePublisher) PublishDir(_ context.Context, sourceID, dir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sourceID+":"+dir)
	return f.urls, f.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

var _ event.Observer = (*eventRecorder)(nil)

func (r *eventRecorder) Publish(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *eventRecorder) chunks() []event.SlideChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.SlideChunk
	for _, e := range r.events {
		if c, ok := e.(event.SlideChunk); ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *eventRecorder) timelines() []event.TimelineReady {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.TimelineReady
	for _, e := range r.events {
		if tl, ok := e.(event.TimelineReady); ok {
			out = append(out, tl)
		}
	}
	return out
}

func (r *eventRecorder) lastStatus() (event.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if s, ok := r.events[i].(event.Status); ok {
			return s, true
		}
	}
	return event.Status{}, false
}

type pipelineFixture struct {
	svc    *Service
	proc   *fakePipelineProc
	client *fakeYtdlp
	ocr    *fakeOCRRunner
	events *eventRecorder
	outDir string
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	logger := testLogger()

	proc := &fakePipelineProc{duration: 120, cuts: []float64{30, 95}}
	client := &fakeYtdlp{}
	runner := &fakeOCRRunner{}
	recorder := &eventRecorder{}

	cfg := &config.Config{
		Workers:            4,
		CalibrationSamples: 4,
		DetectFormat:       "best[height<=480]",
		ExtractFormat:      "best[height<=1080]",
		PreferStream:       true,
		SubprocessTimeout:  time.Minute,
		DownloadTimeout:    time.Minute,
		TempDir:            t.TempDir(),
	}

	store, err := storage.NewTempStore(filepath.Join(t.TempDir(), "scratch"))
	require.NoError(t, err)

	svc := NewService(ServiceDeps{
		Config:    cfg,
		Detector:  scene.NewDetector(proc, cfg.Workers, cfg.SubprocessTimeout, logger),
		Extractor: frames.NewExtractor(proc, cfg.Workers, cfg.SubprocessTimeout, logger),
		OCR:       ocr.NewBatch(runner, 2, time.Minute, logger),
		Acquirer:  NewAcquirer(client, store, cfg.ExtractFormat, time.Second, time.Minute, logger),
		Locks:     NewLockRegistry(),
		Observer:  recorder,
		Logger:    logger,
	})
	svc.lookPath = func(bin string) (string, error) { return "/usr/bin/" + bin, nil }

	return &pipelineFixture{
		svc:    svc,
		proc:   proc,
		client: client,
		ocr:    runner,
		events: recorder,
		outDir: filepath.Join(t.TempDir(), "slides"),
	}
}

func (f *pipelineFixture) settings() Settings {
	return Settings{OutputDir: f.outDir}
}

func assertSpaced(t *testing.T, stamps []float64, minGap float64) {
	t.Helper()
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i]-stamps[i-1], minGap,
			"slides %d and %d closer than %v", i, i+1, minGap)
	}
}

func TestServiceRunYouTube(t *testing.T) {
	fix := newPipelineFixture(t)
	src := youtubeTestSource()

	res, err := fix.svc.Run(context.Background(), src, fix.settings())
	require.NoError(t, err)

	assert.Equal(t, src.URL, res.SourceURL)
	assert.Equal(t, "youtube", res.SourceKind)
	assert.Equal(t, src.ID, res.SourceID)
	assert.Equal(t, fix.outDir, res.SlidesDir)
	assert.False(t, res.FromCache)
	assert.InDelta(t, DefaultSceneThreshold, res.SceneThreshold, 1e-9)
	assert.Equal(t, DefaultMaxSlides, res.MaxSlides)
	assert.InDelta(t, DefaultMinSlideDuration, res.MinSlideDuration, 1e-9)
	assert.Empty(t, res.Warnings)

	// Two real cuts supplemented by the fallback grid.
	stamps := make([]float64, 0, len(res.Slides))
	for i, sl := range res.Slides {
		assert.Equal(t, i+1, sl.Index)
		assert.FileExists(t, sl.ImagePath)
		assert.Equal(t, fix.outDir, filepath.Dir(sl.ImagePath))
		stamps = append(stamps, sl.Timestamp)
	}
	assert.Equal(t, []float64{10, 30, 50, 70, 95, 110}, stamps)
	assertSpaced(t, stamps, DefaultMinSlideDuration)

	// Detection streamed at the cheap format, stills at the rich one,
	// nothing downloaded.
	assert.Zero(t, fix.client.downloads)
	assert.Equal(t, []string{"best[height<=480]", "best[height<=1080]"}, fix.client.resolves)

	cached, err := ReadManifest(fix.outDir)
	require.NoError(t, err)
	assert.Equal(t, res.Slides, cached.Slides)

	timelines := fix.events.timelines()
	require.Len(t, timelines, 1)
	assert.Equal(t, stamps, timelines[0].Timestamps)
	assert.Len(t, fix.events.chunks(), len(res.Slides))
	last, ok := fix.events.lastStatus()
	require.True(t, ok)
	assert.Equal(t, "done", last.Stage)
	assert.InDelta(t, 100, last.Percent, 1e-9)
}

func TestServiceRunDirectFile(t *testing.T) {
	fix := newPipelineFixture(t)

	video := filepath.Join(t.TempDir(), "lecture.mp4")
	require.NoError(t, os.WriteFile(video, []byte("vid"), 0o600))
	src := &source.Source{URL: video, Kind: source.KindDirect, ID: "direct-lecture"}

	res, err := fix.svc.Run(context.Background(), src, fix.settings())
	require.NoError(t, err)
	require.NotEmpty(t, res.Slides)
	assert.Equal(t, "direct", res.SourceKind)
	assert.Empty(t, fix.client.resolves, "direct files never touch yt-dlp")
	assert.Zero(t, fix.client.downloads)
}

func TestServiceRunCache(t *testing.T) {
	fix := newPipelineFixture(t)
	src := youtubeTestSource()
	ctx := context.Background()

	first, err := fix.svc.Run(ctx, src, fix.settings())
	require.NoError(t, err)
	require.False(t, first.FromCache)

	detects, extracts := fix.proc.counts()
	fix.events.reset()

	second, err := fix.svc.Run(ctx, src, fix.settings())
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Slides, second.Slides)
	assert.Equal(t, first.SourceID, second.SourceID)

	detectsAfter, extractsAfter := fix.proc.counts()
	assert.Equal(t, detects, detectsAfter, "cache hits must not re-detect")
	assert.Equal(t, extracts, extractsAfter, "cache hits must not re-extract")
	assert.Zero(t, fix.client.downloads)

	// Cached runs replay the event stream for streaming consumers.
	require.Len(t, fix.events.timelines(), 1)
	assert.Len(t, fix.events.chunks(), len(first.Slides))
	last, ok := fix.events.lastStatus()
	require.True(t, ok)
	assert.Equal(t, "done", last.Stage)

	refresh := fix.settings()
	refresh.RefreshCache = true
	third, err := fix.svc.Run(ctx, src, refresh)
	require.NoError(t, err)
	assert.False(t, third.FromCache)
	detectsRefreshed, _ := fix.proc.counts()
	assert.Greater(t, detectsRefreshed, detects, "refresh bypasses the cache")
}

func TestServiceRunRegeneratesOnStrayFile(t *testing.T) {
	fix := newPipelineFixture(t)
	src := youtubeTestSource()
	ctx := context.Background()

	_, err := fix.svc.Run(ctx, src, fix.settings())
	require.NoError(t, err)

	stray := filepath.Join(fix.outDir, "slide-099-0s.png")
	require.NoError(t, os.WriteFile(stray, []byte("stray"), 0o600))

	res, err := fix.svc.Run(ctx, src, fix.settings())
	require.NoError(t, err)
	assert.False(t, res.FromCache, "a tampered directory must not serve from cache")
	assert.NoFileExists(t, stray, "regeneration resets the directory")

	_, err = ReadManifest(fix.outDir)
	assert.NoError(t, err)
}

func TestServiceRunOCR(t *testing.T) {
	fix := newPipelineFixture(t)
	src := youtubeTestSource()
	ctx := context.Background()

	plain, err := fix.svc.Run(ctx, src, fix.settings())
	require.NoError(t, err)
	require.NotEmpty(t, plain.Slides)
	assert.Empty(t, plain.Slides[0].OCRText)
	assert.Zero(t, fix.ocr.calls)

	// A cached run without text cannot serve a request that wants it.
	withText := fix.settings()
	withText.OCR = true
	upgraded, err := fix.svc.Run(ctx, src, withText)
	require.NoError(t, err)
	assert.False(t, upgraded.FromCache)
	assert.True(t, upgraded.OCRRequested)
	assert.True(t, upgraded.OCRAvailable)
	for _, sl := range upgraded.Slides {
		assert.NotEmpty(t, sl.OCRText)
		assert.InDelta(t, 0.9, sl.OCRConfidence, 1e-9)
	}
	assert.Equal(t, len(upgraded.Slides), fix.ocr.calls)

	// The richer cached result satisfies later text-less calls.
	again, err := fix.svc.Run(ctx, src, fix.settings())
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.NotEmpty(t, again.Slides[0].OCRText)
}

func TestServiceRunMissingTool(t *testing.T) {
	t.Run("ffmpeg is always required", func(t *testing.T) {
		fix := newPipelineFixture(t)
		fix.svc.lookPath = func(bin string) (string, error) {
			if bin == "ffmpeg" {
				return "", exec.ErrNotFound
			}
			return "/usr/bin/" + bin, nil
		}

		_, err := fix.svc.Run(context.Background(), youtubeTestSource(), fix.settings())
		var missing *MissingToolError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "ffmpeg", missing.Tool)
	})

	t.Run("tesseract fatal only when text was requested", func(t *testing.T) {
		fix := newPipelineFixture(t)
		fix.svc.lookPath = func(bin string) (string, error) {
			if bin == "tesseract" {
				return "", exec.ErrNotFound
			}
			return "/usr/bin/" + bin, nil
		}

		res, err := fix.svc.Run(context.Background(), youtubeTestSource(), fix.settings())
		require.NoError(t, err)
		assert.False(t, res.OCRAvailable)

		withText := fix.settings()
		withText.OCR = true
		_, err = fix.svc.Run(context.Background(), youtubeTestSource(), withText)
		var missing *MissingToolError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "tesseract", missing.Tool)
		assert.ErrorContains(t, err, "install tesseract or skip OCR")
	})

	t.Run("yt-dlp needed only for youtube", func(t *testing.T) {
		fix := newPipelineFixture(t)
		fix.svc.lookPath = func(bin string) (string, error) {
			if bin == "yt-dlp" {
				return "", exec.ErrNotFound
			}
			return "/usr/bin/" + bin, nil
		}

		video := filepath.Join(t.TempDir(), "talk.mp4")
		require.NoError(t, os.WriteFile(video, []byte("vid"), 0o600))
		src := &source.Source{URL: video, Kind: source.KindDirect, ID: "direct-talk"}
		_, err := fix.svc.Run(context.Background(), src, fix.settings())
		require.NoError(t, err)

		other := Settings{OutputDir: filepath.Join(t.TempDir(), "other")}
		_, err = fix.svc.Run(context.Background(), youtubeTestSource(), other)
		var missing *MissingToolError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "yt-dlp", missing.Tool)
	})
}

func TestServiceRunZeroScenes(t *testing.T) {
	t.Run("local file fails without fallback", func(t *testing.T) {
		fix := newPipelineFixture(t)
		fix.proc.cuts = nil

		video := filepath.Join(t.TempDir(), "static.mp4")
		require.NoError(t, os.WriteFile(video, []byte("vid"), 0o600))
		src := &source.Source{URL: video, Kind: source.KindDirect, ID: "direct-static"}

		_, err := fix.svc.Run(context.Background(), src, fix.settings())
		require.ErrorIs(t, err, ErrZeroScenes)
		assert.Zero(t, fix.client.downloads)
	})

	t.Run("stream gets one full-download attempt", func(t *testing.T) {
		fix := newPipelineFixture(t)
		fix.proc.cuts = nil

		_, err := fix.svc.Run(context.Background(), youtubeTestSource(), fix.settings())
		require.ErrorIs(t, err, ErrZeroScenes)
		assert.Equal(t, 1, fix.client.downloads)
	})
}

func TestServiceRunStreamFallbackFindsScenes(t *testing.T) {
	fix := newPipelineFixture(t)
	fix.proc.detectFn = func(input string, _, start, duration float64) ([]float64, error) {
		if strings.HasPrefix(input, "http") {
			return nil, nil
		}
		return cutsInWindow([]float64{30, 95}, start, duration), nil
	}

	res, err := fix.svc.Run(context.Background(), youtubeTestSource(), fix.settings())
	require.NoError(t, err)
	require.NotEmpty(t, res.Slides)
	assert.Equal(t, 1, fix.client.downloads)
	assert.Equal(t, []string{"best[height<=480]"}, fix.client.resolves,
		"the downloaded file serves extraction, no second stream resolve")
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "falling back to full download")
	assert.InDelta(t, DefaultSceneThreshold, res.SceneThreshold, 1e-9)
}

func TestServiceRunRetryThresholdWarning(t *testing.T) {
	fix := newPipelineFixture(t)
	fix.proc.detectFn = func(_ string, threshold, start, duration float64) ([]float64, error) {
		if threshold > 0.2 {
			return nil, nil
		}
		return cutsInWindow([]float64{30, 95}, start, duration), nil
	}

	res, err := fix.svc.Run(context.Background(), youtubeTestSource(), fix.settings())
	require.NoError(t, err)
	assert.InDelta(t, 0.15, res.SceneThreshold, 1e-9)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "retry used lower threshold")
}

func TestServiceRunHonorsLimits(t *testing.T) {
	fix := newPipelineFixture(t)
	fix.proc.duration = 300
	cuts := make([]float64, 0, 24)
	for ts := 12.0; ts < 300; ts += 12 {
		cuts = append(cuts, ts)
	}
	fix.proc.cuts = cuts

	settings := fix.settings()
	settings.MaxSlides = 3
	settings.MinSlideDuration = 20

	res, err := fix.svc.Run(context.Background(), youtubeTestSource(), settings)
	require.NoError(t, err)
	assert.Len(t, res.Slides, 3)
	assert.Equal(t, 3, res.MaxSlides)

	stamps := make([]float64, 0, len(res.Slides))
	for _, sl := range res.Slides {
		stamps = append(stamps, sl.Timestamp)
	}
	assertSpaced(t, stamps, 20)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "slide cap")

	files, err := filepath.Glob(filepath.Join(fix.outDir, "*.png"))
	require.NoError(t, err)
	assert.Len(t, files, 3, "the directory holds exactly the kept slides")
}

func TestServiceRunPartialExtraction(t *testing.T) {
	fix := newPipelineFixture(t)
	fix.proc.extractFn = func(_ string, seekBase, offset float64, outPath string) (media.FrameStats, error) {
		if math.Abs(seekBase+offset-50) < 3 {
			return media.FrameStats{}, errors.New("decode failed")
		}
		if err := os.WriteFile(outPath, []byte("png"), 0o600); err != nil {
			return media.FrameStats{}, err
		}
		at := offset
		return media.FrameStats{Brightness: 0.8, Contrast: 0.5, ReportedTime: &at}, nil
	}

	res, err := fix.svc.Run(context.Background(), youtubeTestSource(), fix.settings())
	require.NoError(t, err)
	assert.Len(t, res.Slides, 5)
	for i, sl := range res.Slides {
		assert.Equal(t, i+1, sl.Index, "surviving slides are renumbered contiguously")
		assert.FileExists(t, sl.ImagePath)
	}
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "extracted 5 of 6")

	var placeholders []event.SlideChunk
	for _, c := range fix.events.chunks() {
		if c.Placeholder {
			placeholders = append(placeholders, c)
		}
	}
	require.Len(t, placeholders, 1)
	assert.InDelta(t, 50, placeholders[0].Timestamp, 1e-9)

	_, err = ReadManifest(fix.outDir)
	assert.NoError(t, err, "a partial run still writes a consistent manifest")
}

func TestServiceRunZeroFrames(t *testing.T) {
	fix := newPipelineFixture(t)
	fix.proc.extractFn = func(string, float64, float64, string) (media.FrameStats, error) {
		return media.FrameStats{}, errors.New("decode failed")
	}

	_, err := fix.svc.Run(context.Background(), youtubeTestSource(), fix.settings())
	require.ErrorIs(t, err, ErrZeroFrames)
}

func TestServiceRunAutoTune(t *testing.T) {
	fix := newPipelineFixture(t)

	settings := fix.settings()
	settings.AutoTuneThreshold = true

	res, err := fix.svc.Run(context.Background(), youtubeTestSource(), settings)
	require.NoError(t, err)
	assert.True(t, res.AutoTune.Enabled)
	assert.Equal(t, StrategyHash, res.AutoTune.Strategy)
	// Identical calibration frames pin the threshold to the floor.
	assert.InDelta(t, scene.MinThreshold, res.AutoTune.ChosenThreshold, 1e-9)
	assert.InDelta(t, scene.MinThreshold, res.SceneThreshold, 1e-9)
}

func TestServiceRunAutoTuneFallsBack(t *testing.T) {
	fix := newPipelineFixture(t)
	fix.proc.duration = 0

	settings := fix.settings()
	settings.AutoTuneThreshold = true

	res, err := fix.svc.Run(context.Background(), youtubeTestSource(), settings)
	require.NoError(t, err)
	assert.Equal(t, StrategyNone, res.AutoTune.Strategy)
	assert.InDelta(t, DefaultSceneThreshold, res.AutoTune.ChosenThreshold, 1e-9)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "auto-tune failed")
	require.NotEmpty(t, res.Slides, "an unknown duration still yields the detected cuts")
}

func TestServiceRunPublishes(t *testing.T) {
	fix := newPipelineFixture(t)
	pub := &fakePublisher{urls: []string{"https://bucket.s3.eu-west-1.amazonaws.com/slides/x.png"}}
	fix.svc.publisher = pub

	res, err := fix.svc.Run(context.Background(), youtubeTestSource(), fix.settings())
	require.NoError(t, err)
	assert.Equal(t, pub.urls, res.UploadedURLs)
	require.Len(t, pub.calls, 1)
	assert.True(t, strings.HasPrefix(pub.calls[0], "youtube-abc123def45:"))
}

func TestServiceRunPublishFailureIsWarning(t *testing.T) {
	fix := newPipelineFixture(t)
	fix.svc.publisher = &fakePublisher{err: errors.New("AccessDenied")}

	res, err := fix.svc.Run(context.Background(), youtubeTestSource(), fix.settings())
	require.NoError(t, err)
	assert.Empty(t, res.UploadedURLs)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "publish failed")
}

func TestServiceRunInvalidInput(t *testing.T) {
	fix := newPipelineFixture(t)

	_, err := fix.svc.Run(context.Background(), nil, fix.settings())
	require.ErrorIs(t, err, ErrSourceRequired)

	_, err = fix.svc.Run(context.Background(), youtubeTestSource(), Settings{})
	require.ErrorContains(t, err, "invalid settings")

	bad := fix.settings()
	bad.SceneThreshold = 1.5
	_, err = fix.svc.Run(context.Background(), youtubeTestSource(), bad)
	require.ErrorContains(t, err, "invalid settings")
}
