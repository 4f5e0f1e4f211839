// Package detect turns transcript segments into booking intents: a regex
// trigger gate followed by LLM extraction of the start and end locations.
package detect

import (
	"context"
	"regexp"
	"strings"

	"github.com/omilabs/ridewire/pkg/logging"
)

// triggerPatterns match the phrasings that ask for a ride. Matching is
// case-insensitive over the combined transcript text.
var triggerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`book\s+(?:an?\s+)?uber`),
	regexp.MustCompile(`get\s+(?:me\s+)?a\s+ride`),
	regexp.MustCompile(`call\s+(?:an?\s+)?uber`),
	regexp.MustCompile(`request\s+(?:an?\s+)?uber`),
	regexp.MustCompile(`order\s+(?:an?\s+)?uber`),
}

// Segment is one piece of a voice transcript.
type Segment struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
}

// Intent is a detected booking request.
type Intent struct {
	Start string
	End   string
}

// Extractor pulls a start and end location out of free text. Either return
// value may be empty when the text names no such location.
type Extractor interface {
	ExtractRoute(ctx context.Context, text string) (start, end string, err error)
}

// Geolocator resolves the rider's current position to a location string
// usable as a pickup.
type Geolocator interface {
	CurrentLocation(ctx context.Context) (string, error)
}

// Detector gates transcripts on a trigger phrase, then extracts the route.
type Detector struct {
	extractor Extractor
	geo       Geolocator
	log       *logging.Logger
}

// NewDetector creates a detector.
func NewDetector(extractor Extractor, geo Geolocator, log *logging.Logger) *Detector {
	return &Detector{extractor: extractor, geo: geo, log: log}
}

// IsTrigger reports whether text contains a booking trigger phrase.
func IsTrigger(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range triggerPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}
	return false
}

// CombineSegments joins transcript segments into one text for matching.
func CombineSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Detect inspects transcript segments for a booking request. It returns nil
// when no trigger phrase is present or no destination could be extracted. A
// missing start location falls back to the rider's current position.
func (d *Detector) Detect(ctx context.Context, segments []Segment) (*Intent, error) {
	text := CombineSegments(segments)
	if !IsTrigger(text) {
		return nil, nil
	}
	d.log.Infof("trigger phrase detected: %q", text)

	start, end, err := d.extractor.ExtractRoute(ctx, text)
	if err != nil {
		return nil, err
	}
	if end == "" {
		d.log.Infof("trigger without extractable destination, ignoring")
		return nil, nil
	}

	if start == "" {
		start, err = d.geo.CurrentLocation(ctx)
		if err != nil {
			return nil, err
		}
	}
	return &Intent{Start: start, End: end}, nil
}
