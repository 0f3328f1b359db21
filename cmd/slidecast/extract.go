package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maauso/slidecast/internal/bootstrap"
	"github.com/maauso/slidecast/internal/config"
	"github.com/maauso/slidecast/internal/event"
	"github.com/maauso/slidecast/internal/slides"
	"github.com/maauso/slidecast/internal/source"
)

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <url-or-file>",
		Short: "Extract slide images from a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args[0])
		},
	}

	cmd.Flags().String("out", "slides", "Output directory")
	cmd.Flags().Bool("ocr", false, "Recognize text on extracted slides")
	cmd.Flags().Float64("threshold", slides.DefaultSceneThreshold, "Scene-change threshold in (0,1]")
	cmd.Flags().Bool("auto-tune", false, "Derive the scene threshold from the video")
	cmd.Flags().Int("max-slides", slides.DefaultMaxSlides, "Keep at most this many slides")
	cmd.Flags().Float64("min-duration", slides.DefaultMinSlideDuration, "Minimum seconds between slides")
	cmd.Flags().Bool("refresh", false, "Ignore a cached result and regenerate")
	cmd.Flags().String("preset", "", "YAML file with extraction settings")
	cmd.Flags().Bool("json", false, "Print the full result as JSON")
	cmd.Flags().Bool("quiet", false, "Suppress progress output")
	return cmd
}

func runExtract(cmd *cobra.Command, input string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	settings, err := buildSettings(cmd)
	if err != nil {
		return err
	}

	src, err := resolveSource(input)
	if err != nil {
		return err
	}

	var observer event.Observer = event.NewLogObserver(logger)
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		observer = event.NopObserver{}
	}

	deps, err := bootstrap.NewDependencies(cfg, logger, observer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := deps.Slides.Run(ctx, src, settings)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printSummary(cmd.OutOrStdout(), res)
	return nil
}

// buildSettings layers extraction settings: built-in defaults, then a
// --preset file, then explicitly set flags.
func buildSettings(cmd *cobra.Command) (slides.Settings, error) {
	flags := cmd.Flags()

	var settings slides.Settings
	settings.OutputDir, _ = flags.GetString("out")
	settings.OCR, _ = flags.GetBool("ocr")
	settings.SceneThreshold, _ = flags.GetFloat64("threshold")
	settings.AutoTuneThreshold, _ = flags.GetBool("auto-tune")
	settings.MaxSlides, _ = flags.GetInt("max-slides")
	settings.MinSlideDuration, _ = flags.GetFloat64("min-duration")
	settings.RefreshCache, _ = flags.GetBool("refresh")

	presetPath, _ := flags.GetString("preset")
	if presetPath == "" {
		return settings, nil
	}

	p, err := loadPreset(presetPath)
	if err != nil {
		return slides.Settings{}, err
	}
	if p.OutputDir != nil && !flags.Changed("out") {
		settings.OutputDir = *p.OutputDir
	}
	if p.OCR != nil && !flags.Changed("ocr") {
		settings.OCR = *p.OCR
	}
	if p.SceneThreshold != nil && !flags.Changed("threshold") {
		settings.SceneThreshold = *p.SceneThreshold
	}
	if p.AutoTune != nil && !flags.Changed("auto-tune") {
		settings.AutoTuneThreshold = *p.AutoTune
	}
	if p.MaxSlides != nil && !flags.Changed("max-slides") {
		settings.MaxSlides = *p.MaxSlides
	}
	if p.MinSlideDuration != nil && !flags.Changed("min-duration") {
		settings.MinSlideDuration = *p.MinSlideDuration
	}
	if p.RefreshCache != nil && !flags.Changed("refresh") {
		settings.RefreshCache = *p.RefreshCache
	}
	return settings, nil
}

// preset mirrors Settings for YAML files. Pointer fields distinguish
// "not set" from an explicit zero, so a preset only overrides the
// fields it names.
type preset struct {
	OutputDir        *string  `yaml:"output_dir"`
	OCR              *bool    `yaml:"ocr"`
	SceneThreshold   *float64 `yaml:"scene_threshold" validate:"omitnil,gte=0,lte=1"`
	AutoTune         *bool    `yaml:"auto_tune_threshold"`
	MaxSlides        *int     `yaml:"max_slides" validate:"omitnil,gte=0,lte=200"`
	MinSlideDuration *float64 `yaml:"min_slide_duration" validate:"omitnil,gte=0"`
	RefreshCache     *bool    `yaml:"refresh_cache"`
}

func loadPreset(path string) (preset, error) {
	var p preset
	data, err := os.ReadFile(path) // #nosec G304 - preset path is chosen by the user running the CLI
	if err != nil {
		return p, fmt.Errorf("read preset: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse preset %s: %w", path, err)
	}
	if err := validator.New().Struct(p); err != nil {
		return p, fmt.Errorf("invalid preset %s: %w", path, err)
	}
	return p, nil
}

// resolveSource turns the positional argument into an engine source.
// Local paths are absolutized so the run does not depend on the working
// directory, and existing files resolve even with unusual extensions.
func resolveSource(input string) (*source.Source, error) {
	if info, err := os.Stat(input); err == nil && !info.IsDir() {
		abs, absErr := filepath.Abs(input)
		if absErr != nil {
			return nil, fmt.Errorf("resolve input path: %w", absErr)
		}
		// The content-type hint marks the file as playable media, which
		// covers extensions the resolver does not know.
		src, _ := source.Resolve(abs, source.Hints{ContentType: "video/x-local"})
		return src, nil
	}
	if src, ok := source.Resolve(input, source.Hints{}); ok {
		return src, nil
	}
	return nil, fmt.Errorf("unrecognized source %q: expected a YouTube link, a direct video URL, or a local video file", input)
}

func printSummary(w io.Writer, res *slides.Result) {
	fmt.Fprintf(w, "%d slides in %s", len(res.Slides), res.SlidesDir)
	if res.FromCache {
		fmt.Fprint(w, " (cached)")
	}
	fmt.Fprintln(w)

	for _, sl := range res.Slides {
		fmt.Fprintf(w, "  %3d  %8.1fs  %s", sl.Index, sl.Timestamp, filepath.Base(sl.ImagePath))
		if sl.OCRText != "" {
			fmt.Fprintf(w, "  %s", summaryLine(sl.OCRText))
		}
		fmt.Fprintln(w)
	}

	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	for _, uploaded := range res.UploadedURLs {
		fmt.Fprintf(w, "uploaded: %s\n", uploaded)
	}
}

// summaryLine reduces recognized text to one short line.
func summaryLine(text string) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	const limit = 60
	runes := []rune(line)
	if len(runes) > limit {
		return string(runes[:limit-3]) + "..."
	}
	return line
}
