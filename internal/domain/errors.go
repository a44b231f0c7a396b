package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingID is returned when an entity id normalizes to the empty string.
	ErrMissingID = errors.New("entity id is empty")

	// ErrMalformedCenter is returned when a point-mode center does not parse.
	ErrMalformedCenter = errors.New("center coordinate is not numeric")

	// ErrEmptyTile is returned when cropping leaves no pixels.
	ErrEmptyTile = errors.New("tile has no pixels after cropping")
)

// FetchError is returned once every fetch attempt for a tile has failed.
// The pipeline treats it as a skip, not a run failure.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch tile after %d attempts: %v", e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StatusError is a non-200 response from the imagery provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("imagery API error: status %d: %s", e.Code, e.Body)
}

// LowResolutionError is returned when a tile is below the quantizer's floor.
// Retrying cannot change the dimensions, so the entity is skipped.
type LowResolutionError struct {
	Width  int
	Height int
	Min    int
}

func (e *LowResolutionError) Error() string {
	return fmt.Sprintf("tile %dx%d below minimum resolution %d", e.Width, e.Height, e.Min)
}

// PersistenceError is a failed write of an output image. It fails the entity
// and is surfaced to the caller of the run.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
