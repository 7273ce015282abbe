// Package segment parses lecture transcripts into ordered timestamped units
// and renders corrected units back into the same plaintext format.
//
// The input format is zero or more blocks of the form
//
//	[H:MM:SS - H:MM:SS]
//	free text until the next header or end of input
//
// Text appearing before the first header produces no segment, and a header
// followed only by whitespace produces no segment either. A header whose
// bracket content does not parse into two timestamps is still emitted, with
// both timestamps falling back to the sentinel "00:00:00" — a malformed
// header is a parse warning, never an error.
package segment

import (
	"regexp"
	"strings"
)

// SentinelTime is the fallback timestamp used when a header cannot be parsed
// into a start/end pair.
const SentinelTime = "00:00:00"

// headerRe recognises a segment header: any bracketed "a - b" pair on the
// loose side, so that malformed timestamps still delimit a unit.
var headerRe = regexp.MustCompile(`\[[^\[\]\n]+ - [^\[\]\n]+\]`)

// timestampRe extracts the two timestamps from a well-formed header.
var timestampRe = regexp.MustCompile(`\[(\d+:\d+:\d+) - (\d+:\d+:\d+)\]`)

// Segment is one timestamped unit of transcript text plus its correction
// state. Fields after Original are populated once by the processing pipeline
// and are immutable thereafter.
type Segment struct {
	// ID is the 1-based sequential identifier. IDs are assigned only to
	// segments with non-empty content, so the sequence has no gaps.
	ID int `json:"id"`

	// StartTime and EndTime are the header timestamps, kept as opaque
	// strings. SentinelTime when the header was malformed.
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	// Original is the trimmed source text of the unit.
	Original string `json:"original"`

	// Corrected is the pipeline output text. Empty until processed.
	Corrected string `json:"corrected,omitempty"`

	// Corrections is the ordered list of correction category tags applied to
	// this segment.
	Corrections []string `json:"corrections,omitempty"`

	// Quality is the quality score for the correction, clamped to [0,1].
	Quality float64 `json:"quality"`

	// LLMUsed reports whether the external LLM produced the final text.
	LLMUsed bool `json:"llm_used"`
}

// Text returns the segment's current text: the corrected text when present,
// otherwise the original.
func (s Segment) Text() string {
	if s.Corrected != "" {
		return s.Corrected
	}
	return s.Original
}

// Parse splits raw transcript text into ordered segments. Source order is
// preserved; whitespace-only units are dropped; IDs are assigned
// sequentially starting at 1.
func Parse(text string) []Segment {
	headers := headerRe.FindAllStringIndex(text, -1)
	segments := make([]Segment, 0, len(headers))

	for i, loc := range headers {
		contentEnd := len(text)
		if i+1 < len(headers) {
			contentEnd = headers[i+1][0]
		}
		content := strings.TrimSpace(text[loc[1]:contentEnd])
		if content == "" {
			continue
		}

		start, end := SentinelTime, SentinelTime
		if m := timestampRe.FindStringSubmatch(text[loc[0]:loc[1]]); m != nil {
			start, end = m[1], m[2]
		}

		segments = append(segments, Segment{
			ID:        len(segments) + 1,
			StartTime: start,
			EndTime:   end,
			Original:  content,
		})
	}

	return segments
}

// Render serialises segments into the output transcript format: for each
// segment, in order, a "[start - end]" header line followed by the segment
// text and a blank line. Re-parsing the result yields the same
// (start, end, text) tuples.
func Render(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString("[")
		b.WriteString(s.StartTime)
		b.WriteString(" - ")
		b.WriteString(s.EndTime)
		b.WriteString("]\n")
		b.WriteString(s.Text())
		b.WriteString("\n\n")
	}
	return b.String()
}
