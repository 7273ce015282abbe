// Package statstore persists per-run processing statistics so correction
// quality and LLM spend can be tracked across batch runs.
package statstore

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRun is returned when a run record fails validation.
var ErrInvalidRun = errors.New("statstore: invalid run")

// Run is one completed processing run over a transcript source.
type Run struct {
	// ID is assigned by the store on insert.
	ID int64

	// SourceFile is the transcript path or a synthetic name for direct
	// text input.
	SourceFile string

	// TotalSegments is the number of non-empty segments processed.
	TotalSegments int

	// LLMUsage counts segments whose final text came from the LLM.
	LLMUsage int

	// AverageQuality is the mean quality score across segments, 0 when
	// the run had no segments.
	AverageQuality float64

	// HighQualityCount counts segments with quality above 0.7.
	HighQualityCount int

	// InputTokens and OutputTokens account LLM usage for the run.
	InputTokens  int
	OutputTokens int

	// CostUSD is the accumulated LLM cost; CostJPY its display conversion.
	CostUSD float64
	CostJPY float64

	// ProcessedAt is assigned by the store on insert.
	ProcessedAt time.Time
}

// Validate checks the record for obviously wrong values.
func (r *Run) Validate() error {
	switch {
	case r.SourceFile == "":
		return errors.Join(ErrInvalidRun, errors.New("source_file is required"))
	case r.TotalSegments < 0:
		return errors.Join(ErrInvalidRun, errors.New("total_segments must not be negative"))
	case r.LLMUsage < 0 || r.LLMUsage > r.TotalSegments:
		return errors.Join(ErrInvalidRun, errors.New("llm_usage out of range"))
	case r.AverageQuality < 0 || r.AverageQuality > 1:
		return errors.Join(ErrInvalidRun, errors.New("average_quality out of range [0,1]"))
	}
	return nil
}

// Store persists run statistics.
type Store interface {
	// Insert stores the run and fills in ID and ProcessedAt.
	Insert(ctx context.Context, run *Run) error

	// List returns the most recent runs, newest first, at most limit.
	List(ctx context.Context, limit int) ([]Run, error)
}
