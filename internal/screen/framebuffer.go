// pattern: Functional Core

package screen

// FrameBuffer stands in for the on-device OLED/TFT of spec.md §1: the
// capability the core depends on is narrowed, in this simulator build,
// to "render a page to a fixed-width string".
type FrameBuffer struct {
	Width int
}

// DefaultFrameBuffer matches a common 128x64 monochrome OLED rendered
// at an 8px-wide monospace font, i.e. 16 character columns, widened for
// legibility since this framebuffer carries text rather than pixels.
var DefaultFrameBuffer = FrameBuffer{Width: 28}
