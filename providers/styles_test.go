package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestImagePrompt(t *testing.T) {
	tests := []struct {
		style string
		want  string
	}{
		{"cartoon-cat", "Convert this image to a cute cartoon cat style"},
		{"pixel-art", "Convert this image to pixel art style"},
		{"watercolor", "Convert this image to watercolor painting style"},
		{"3d-render", "Convert this image to 3D rendered style"},
		{"", "Convert this image to a stylized version"},
		{"vaporwave", "Convert this image to a stylized version"},
	}
	for _, tt := range tests {
		t.Run(tt.style, func(t *testing.T) {
			assert.Equal(t, tt.want, ImagePrompt(tt.style))
		})
	}
}

func TestImagePrompt_UnknownIDsFallBack(t *testing.T) {
	known := map[string]bool{}
	for _, s := range Styles {
		known[s.ID] = true
	}
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.String().Filter(func(s string) bool { return !known[s] }).Draw(t, "id")
		if got := ImagePrompt(id); got != FallbackStyle.Instruction {
			t.Fatalf("ImagePrompt(%q) = %q", id, got)
		}
	})
}

func TestTextPrompt(t *testing.T) {
	assert.Equal(t, "a fox in the snow, in watercolor painting style", TextPrompt("watercolor", "  a fox in the snow "))
	assert.Equal(t, "a fox, in a stylized version", TextPrompt("unknown", "a fox"))
}

func TestLookupStyle(t *testing.T) {
	s, ok := LookupStyle("3d-render")
	assert.True(t, ok)
	assert.Equal(t, "3D Render", s.Name)

	s, ok = LookupStyle("nope")
	assert.False(t, ok)
	assert.Equal(t, FallbackStyle, s)
}
