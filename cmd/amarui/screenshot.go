package main

import (
	"github.com/fogleman/gg"

	"github.com/sirreidlos/amarui/internal/console"
)

// saveScreenshot writes the framebuffer as a PNG. The machine must be
// stopped.
func saveScreenshot(path string, buf []byte, info console.FrameBufferInfo) error {
	dc := gg.NewContextForRGBA(console.Snapshot(buf, info))
	return dc.SavePNG(path)
}
