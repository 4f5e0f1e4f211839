package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omilabs/ridewire/pkg/logging"
)

func TestIsTrigger(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"book an uber to the airport", true},
		{"Book Uber", true},
		{"please get me a ride home", true},
		{"get a ride to downtown", true},
		{"call an uber", true},
		{"request uber from the office", true},
		{"order an uber", true},
		{"ORDER AN UBER", true},
		{"I took an uber yesterday", false},
		{"let's book a table", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTrigger(tt.text))
		})
	}
}

func TestCombineSegments(t *testing.T) {
	segments := []Segment{
		{Text: "hey can you", Speaker: "SPEAKER_0"},
		{Text: ""},
		{Text: "book an uber to the airport", Speaker: "SPEAKER_0"},
	}
	assert.Equal(t, "hey can you book an uber to the airport", CombineSegments(segments))
}

type stubExtractor struct {
	start, end string
	err        error
	called     bool
}

func (s *stubExtractor) ExtractRoute(ctx context.Context, text string) (string, string, error) {
	s.called = true
	return s.start, s.end, s.err
}

func TestDetect(t *testing.T) {
	geo := NewStaticGeolocator("Current Location")

	t.Run("no trigger skips extraction", func(t *testing.T) {
		ex := &stubExtractor{}
		d := NewDetector(ex, geo, logging.Discard())

		intent, err := d.Detect(context.Background(), []Segment{{Text: "nice weather today"}})
		require.NoError(t, err)
		assert.Nil(t, intent)
		assert.False(t, ex.called)
	})

	t.Run("full route", func(t *testing.T) {
		ex := &stubExtractor{start: "Home", end: "Airport"}
		d := NewDetector(ex, geo, logging.Discard())

		intent, err := d.Detect(context.Background(), []Segment{{Text: "book an uber from home to the airport"}})
		require.NoError(t, err)
		require.NotNil(t, intent)
		assert.Equal(t, "Home", intent.Start)
		assert.Equal(t, "Airport", intent.End)
	})

	t.Run("missing start falls back to current location", func(t *testing.T) {
		ex := &stubExtractor{end: "Airport"}
		d := NewDetector(ex, geo, logging.Discard())

		intent, err := d.Detect(context.Background(), []Segment{{Text: "book an uber to the airport"}})
		require.NoError(t, err)
		require.NotNil(t, intent)
		assert.Equal(t, "Current Location", intent.Start)
		assert.Equal(t, "Airport", intent.End)
	})

	t.Run("trigger without destination", func(t *testing.T) {
		ex := &stubExtractor{}
		d := NewDetector(ex, geo, logging.Discard())

		intent, err := d.Detect(context.Background(), []Segment{{Text: "book an uber"}})
		require.NoError(t, err)
		assert.Nil(t, intent)
		assert.True(t, ex.called)
	})

	t.Run("extractor error propagates", func(t *testing.T) {
		ex := &stubExtractor{err: assert.AnError}
		d := NewDetector(ex, geo, logging.Discard())

		_, err := d.Detect(context.Background(), []Segment{{Text: "book an uber to the airport"}})
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestParseRoute(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		start  string
		end    string
	}{
		{"both locations", "Home|Airport", "Home", "Airport"},
		{"whitespace trimmed", "  Home | Airport \n", "Home", "Airport"},
		{"current location mapped to empty", "Current Location|Airport", "", "Airport"},
		{"not found", "NOT_FOUND|NOT_FOUND", "", ""},
		{"malformed", "just some prose", "", ""},
		{"too many parts", "a|b|c", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := parseRoute(tt.answer)
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}
