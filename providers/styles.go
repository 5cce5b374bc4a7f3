package providers

import (
	"fmt"
	"strings"
)

// Style is a visual style the user can pick.
type Style struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Instruction is sent with a reference image.
	Instruction string `json:"-"`
	// Descriptor is appended to a text prompt.
	Descriptor string `json:"-"`
}

// Styles lists the selectable styles in display order.
var Styles = []Style{
	{ID: "cartoon-cat", Name: "Cartoon Cat", Instruction: "Convert this image to a cute cartoon cat style", Descriptor: "a cute cartoon cat style"},
	{ID: "pixel-art", Name: "Pixel Art", Instruction: "Convert this image to pixel art style", Descriptor: "pixel art style"},
	{ID: "watercolor", Name: "Watercolor", Instruction: "Convert this image to watercolor painting style", Descriptor: "watercolor painting style"},
	{ID: "3d-render", Name: "3D Render", Instruction: "Convert this image to 3D rendered style", Descriptor: "3D rendered style"},
}

// FallbackStyle is used for any unknown style id.
var FallbackStyle = Style{
	Name:        "Stylized",
	Instruction: "Convert this image to a stylized version",
	Descriptor:  "a stylized version",
}

// LookupStyle returns the style for id, or FallbackStyle and false.
func LookupStyle(id string) (Style, bool) {
	for _, s := range Styles {
		if s.ID == id {
			return s, true
		}
	}
	return FallbackStyle, false
}

// ImagePrompt is the instruction sent alongside a reference image.
func ImagePrompt(styleID string) string {
	s, _ := LookupStyle(styleID)
	return s.Instruction
}

// TextPrompt combines free text with the style descriptor.
func TextPrompt(styleID, text string) string {
	s, _ := LookupStyle(styleID)
	return fmt.Sprintf("%s, in %s", strings.TrimSpace(text), s.Descriptor)
}
