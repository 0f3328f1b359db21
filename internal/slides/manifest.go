package slides

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ManifestName is the cache manifest file inside an output directory.
const ManifestName = "manifest.json"

// manifestVersion guards against reading manifests produced by an older
// layout of Result.
const manifestVersion = 1

// Manifest validation errors.
var (
	// ErrManifestVersion is returned for manifests written by a different
	// layout version.
	ErrManifestVersion = errors.New("slides: manifest version mismatch")
	// ErrManifestInvalid is returned when a manifest fails structural
	// validation or no longer matches the directory contents.
	ErrManifestInvalid = errors.New("slides: manifest does not match directory contents")
)

type manifestFile struct {
	ManifestVersion int       `json:"manifest_version"`
	GeneratedAt     time.Time `json:"generated_at"`
	Result
}

// WriteManifest persists res into dir as the cache manifest. Image paths
// are stored relative to dir so the directory stays relocatable. Callers
// must only write after the full pipeline succeeded.
func WriteManifest(dir string, res Result) error {
	m := manifestFile{
		ManifestVersion: manifestVersion,
		GeneratedAt:     time.Now().UTC(),
		Result:          res,
	}
	m.SlidesDir = ""
	m.FromCache = false
	m.UploadedURLs = nil

	slides := make([]Slide, len(res.Slides))
	copy(slides, res.Slides)
	for i := range slides {
		slides[i].ImagePath = relativeTo(dir, slides[i].ImagePath)
	}
	m.Slides = slides

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("slides: encode manifest: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 - manifest is shareable output, not a secret
		return fmt.Errorf("slides: write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads and validates the manifest in dir, restoring
// absolute image paths. A missing manifest surfaces as fs.ErrNotExist.
func ReadManifest(dir string) (*Result, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName)) // #nosec G304 - path under caller-owned output dir
	if err != nil {
		return nil, err
	}

	var m manifestFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("slides: decode manifest: %w", err)
	}
	if m.ManifestVersion != manifestVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrManifestVersion, m.ManifestVersion, manifestVersion)
	}

	res := m.Result
	res.SlidesDir = dir
	for i := range res.Slides {
		if !filepath.IsAbs(res.Slides[i].ImagePath) {
			res.Slides[i].ImagePath = filepath.Join(dir, res.Slides[i].ImagePath)
		}
	}

	if err := validateManifest(dir, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// validateManifest checks the invariants a cache hit relies on:
// contiguous 1-based indices, ascending timestamps, and an exact match
// between listed slides and the PNG files on disk.
func validateManifest(dir string, res *Result) error {
	if res.SourceID == "" || len(res.Slides) == 0 {
		return fmt.Errorf("%w: missing source id or slides", ErrManifestInvalid)
	}

	listed := make(map[string]bool, len(res.Slides))
	prev := math.Inf(-1)
	for i, s := range res.Slides {
		if s.Index != i+1 {
			return fmt.Errorf("%w: indices not contiguous at position %d", ErrManifestInvalid, i)
		}
		if s.Timestamp < prev {
			return fmt.Errorf("%w: timestamps not ascending at index %d", ErrManifestInvalid, s.Index)
		}
		prev = s.Timestamp

		if _, err := os.Stat(s.ImagePath); err != nil {
			return fmt.Errorf("%w: missing image %s", ErrManifestInvalid, filepath.Base(s.ImagePath))
		}
		listed[filepath.Base(s.ImagePath)] = true
	}

	onDisk, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return err
	}
	for _, p := range onDisk {
		if !listed[filepath.Base(p)] {
			return fmt.Errorf("%w: stray image %s", ErrManifestInvalid, filepath.Base(p))
		}
	}
	return nil
}

// resetDir prepares a fresh run: the directory exists and holds no
// manifest or image files from a previous one, so the manifest written
// later reflects exactly what is on disk.
func resetDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("slides: create output directory: %w", err)
	}

	stale, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return err
	}
	stale = append(stale, filepath.Join(dir, ManifestName))
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("slides: remove stale %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func relativeTo(dir, path string) string {
	if rel, err := filepath.Rel(dir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return filepath.Base(path)
}
