package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisibleText(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		want     string
	}{
		{
			name:     "plain text",
			fragment: `<div><p>Choose a ride</p></div>`,
			want:     "Choose a ride",
		},
		{
			name:     "scripts and styles dropped",
			fragment: `<div><script>boot()</script><style>.a{}</style><span>UberX</span></div>`,
			want:     "UberX",
		},
		{
			name:     "whitespace collapsed",
			fragment: "<div>\n  <p>Home</p>\n  <p>Airport</p>\n</div>",
			want:     "Home Airport",
		},
		{
			name:     "empty shell",
			fragment: `<div id="root"><script src="app.js"></script></div>`,
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, visibleText(tt.fragment))
		})
	}
}
