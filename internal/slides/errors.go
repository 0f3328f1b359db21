package slides

import (
	"errors"
	"fmt"
)

// Terminal pipeline conditions. Both fire only after every applicable
// fallback was exhausted.
var (
	// ErrZeroScenes is returned when no scene changes exist even after the
	// lower-threshold retry and, for streamed media, the download fallback.
	ErrZeroScenes = errors.New("slides: no scene changes detected")
	// ErrZeroFrames is returned when not a single frame could be extracted.
	ErrZeroFrames = errors.New("slides: no frames could be extracted")
	// ErrSourceRequired is returned when Run is called without a source.
	ErrSourceRequired = errors.New("slides: source is required")
)

// MissingToolError reports a required external engine that could not be
// found before the pipeline started.
type MissingToolError struct {
	Tool string
	Hint string
}

func (e *MissingToolError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("slides: required tool %q not found (%s)", e.Tool, e.Hint)
	}
	return fmt.Sprintf("slides: required tool %q not found", e.Tool)
}

// AcquisitionError reports that no strategy produced playable media for a
// source.
type AcquisitionError struct {
	URL string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("slides: could not acquire media for %s: %v", e.URL, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}
