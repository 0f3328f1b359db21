// Package slides orchestrates the slide extraction pipeline: acquiring
// media, detecting scene changes, selecting timestamps, extracting and
// refining frames, running OCR, and persisting a cacheable manifest.
package slides

// Defaults applied by Settings.withDefaults.
const (
	DefaultSceneThreshold   = 0.3
	DefaultMaxSlides        = 20
	DefaultMinSlideDuration = 10.0
)

// Threshold auto-tune strategies.
const (
	StrategyHash = "hash"
	StrategyNone = "none"
)

// Settings controls one extraction run. Zero values for the numeric
// fields select the defaults.
type Settings struct {
	OutputDir         string  `json:"output_dir" validate:"required"`
	OCR               bool    `json:"ocr"`
	SceneThreshold    float64 `json:"scene_threshold" validate:"gte=0,lte=1"`
	AutoTuneThreshold bool    `json:"auto_tune_threshold"`
	MaxSlides         int     `json:"max_slides" validate:"gte=0,lte=200"`
	MinSlideDuration  float64 `json:"min_slide_duration" validate:"gte=0"`
	RefreshCache      bool    `json:"refresh_cache"`
}

func (s Settings) withDefaults() Settings {
	if s.SceneThreshold == 0 {
		s.SceneThreshold = DefaultSceneThreshold
	}
	if s.MaxSlides == 0 {
		s.MaxSlides = DefaultMaxSlides
	}
	if s.MinSlideDuration == 0 {
		s.MinSlideDuration = DefaultMinSlideDuration
	}
	return s
}

// Slide is one extracted frame with optional recognized text.
type Slide struct {
	Index         int     `json:"index"`
	Timestamp     float64 `json:"timestamp"`
	ImagePath     string  `json:"image_path"`
	ImageVersion  int     `json:"image_version,omitempty"`
	OCRText       string  `json:"ocr_text,omitempty"`
	OCRConfidence float64 `json:"ocr_confidence,omitempty"`
	Brightness    float64 `json:"brightness"`
	Contrast      float64 `json:"contrast"`
}

// AutoTune reports how the scene threshold was chosen.
type AutoTune struct {
	Enabled         bool    `json:"enabled"`
	ChosenThreshold float64 `json:"chosen_threshold"`
	Confidence      float64 `json:"confidence"`
	Strategy        string  `json:"strategy"`
}

// Result describes one completed extraction run. SceneThreshold is the
// threshold detection actually ran with, after auto-tune and any
// zero-result retry.
type Result struct {
	SourceURL         string   `json:"source_url"`
	SourceKind        string   `json:"source_kind"`
	SourceID          string   `json:"source_id"`
	SlidesDir         string   `json:"slides_dir,omitempty"`
	SceneThreshold    float64  `json:"scene_threshold"`
	AutoTuneThreshold bool     `json:"auto_tune_threshold"`
	AutoTune          AutoTune `json:"auto_tune"`
	MaxSlides         int      `json:"max_slides"`
	MinSlideDuration  float64  `json:"min_slide_duration"`
	OCRRequested      bool     `json:"ocr_requested"`
	OCRAvailable      bool     `json:"ocr_available"`
	Slides            []Slide  `json:"slides"`
	Warnings          []string `json:"warnings,omitempty"`
	FromCache         bool     `json:"from_cache,omitempty"`
	UploadedURLs      []string `json:"uploaded_urls,omitempty"`
}

// SatisfiesOCR reports whether this cached result can stand in for a run
// with the given OCR request. A cached run without recognized text does
// not satisfy a call that wants it.
func (r *Result) SatisfiesOCR(wantOCR bool) bool {
	return !wantOCR || (r.OCRRequested && r.OCRAvailable)
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
