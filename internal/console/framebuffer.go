package console

import (
	"fmt"
	"image"
	"image/color"
	"unicode/utf8"

	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	kerrors "github.com/sirreidlos/amarui/internal/errors"
)

// PixelFormat is the layout of one framebuffer pixel.
type PixelFormat int

const (
	PixelFormatRGB PixelFormat = iota
	PixelFormatBGR
	PixelFormatU8
	PixelFormatUnknown
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatRGB:
		return "Rgb"
	case PixelFormatBGR:
		return "Bgr"
	case PixelFormatU8:
		return "U8"
	default:
		return "Unknown"
	}
}

// ParsePixelFormat accepts rgb, bgr and u8 in any case.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "rgb", "RGB", "Rgb":
		return PixelFormatRGB, nil
	case "bgr", "BGR", "Bgr":
		return PixelFormatBGR, nil
	case "u8", "U8":
		return PixelFormatU8, nil
	}
	return PixelFormatUnknown, kerrors.InvalidConfig("pixel_format", fmt.Sprintf("unsupported pixel format %q", s))
}

// FrameBufferInfo describes the framebuffer handed over by the bootloader.
type FrameBufferInfo struct {
	ByteLen       int
	Width         int
	Height        int
	PixelFormat   PixelFormat
	BytesPerPixel int
	// Stride is the number of pixels between the start of a line and the
	// start of the next.
	Stride int
}

func (i FrameBufferInfo) String() string {
	return fmt.Sprintf("FrameBufferInfo { byte_len: %d, width: %d, height: %d, pixel_format: %v, bytes_per_pixel: %d, stride: %d }",
		i.ByteLen, i.Width, i.Height, i.PixelFormat, i.BytesPerPixel, i.Stride)
}

// Layout constants of the text renderer, in pixels.
const (
	LineSpacing   = 2
	LetterSpacing = 0
	BorderPadding = 1
)

const backupChar = '�'

var font = basicfont.Face7x13

// FrameBufferWriter renders text into a pixel framebuffer.
type FrameBufferWriter struct {
	buf  []byte
	info FrameBufferInfo
	x, y int
}

// NewFrameBufferWriter clears buf and returns a writer positioned at the top
// left corner.
func NewFrameBufferWriter(buf []byte, info FrameBufferInfo) (*FrameBufferWriter, error) {
	switch info.PixelFormat {
	case PixelFormatRGB, PixelFormatBGR:
		if info.BytesPerPixel < 3 || info.BytesPerPixel > 4 {
			return nil, kerrors.InvalidConfig("bytes_per_pixel", fmt.Sprintf("%d bytes cannot hold a %v pixel", info.BytesPerPixel, info.PixelFormat))
		}
	case PixelFormatU8:
		if info.BytesPerPixel != 1 {
			return nil, kerrors.InvalidConfig("bytes_per_pixel", "U8 pixels are one byte")
		}
	default:
		return nil, kerrors.InvalidConfig("pixel_format", fmt.Sprintf("pixel format %v not supported in logger", info.PixelFormat))
	}
	if info.Stride < info.Width {
		return nil, kerrors.InvalidConfig("stride", "stride is shorter than a line")
	}
	if need := info.Stride * info.Height * info.BytesPerPixel; len(buf) < need {
		return nil, kerrors.InvalidConfig("byte_len", fmt.Sprintf("framebuffer holds %d bytes, geometry needs %d", len(buf), need))
	}
	w := &FrameBufferWriter{buf: buf, info: info}
	w.Clear()
	return w, nil
}

// Info returns the framebuffer geometry.
func (w *FrameBufferWriter) Info() FrameBufferInfo { return w.info }

// Position returns the pixel coordinates of the next character cell.
func (w *FrameBufferWriter) Position() (x, y int) { return w.x, w.y }

func (w *FrameBufferWriter) newline() {
	w.y += font.Height + LineSpacing
	w.carriageReturn()
}

func (w *FrameBufferWriter) carriageReturn() {
	w.x = BorderPadding
}

// Clear erases the screen and moves to the top left corner.
func (w *FrameBufferWriter) Clear() {
	w.x = BorderPadding
	w.y = BorderPadding
	for i := range w.buf {
		w.buf[i] = 0
	}
}

func (w *FrameBufferWriter) writeChar(r rune) {
	switch r {
	case '\n':
		w.newline()
	case '\r':
		w.carriageReturn()
	case '\b':
		if w.x-font.Width-LetterSpacing >= BorderPadding {
			w.x -= font.Width + LetterSpacing
			w.fillCell(0)
		}
	default:
		if w.x+font.Width >= w.info.Width {
			w.newline()
		}
		if w.y+font.Height+BorderPadding >= w.info.Height {
			w.Clear()
		}
		w.renderChar(r)
		w.x += font.Width + LetterSpacing
	}
}

func (w *FrameBufferWriter) fillCell(intensity uint8) {
	for dy := 0; dy < font.Height; dy++ {
		for dx := 0; dx < font.Width; dx++ {
			w.writePixel(w.x+dx, w.y+dy, intensity)
		}
	}
}

func (w *FrameBufferWriter) renderChar(r rune) {
	dot := fixed.P(w.x, w.y+font.Ascent)
	dr, mask, maskp, _, ok := font.Glyph(dot, r)
	if !ok {
		dr, mask, maskp, _, ok = font.Glyph(dot, backupChar)
	}
	if !ok {
		dr, mask, maskp, _, _ = font.Glyph(dot, '?')
	}
	for y := dr.Min.Y; y < dr.Max.Y; y++ {
		for x := dr.Min.X; x < dr.Max.X; x++ {
			_, _, _, a := mask.At(maskp.X+x-dr.Min.X, maskp.Y+y-dr.Min.Y).RGBA()
			w.writePixel(x, y, uint8(a>>8))
		}
	}
}

func (w *FrameBufferWriter) writePixel(x, y int, intensity uint8) {
	if x < 0 || y < 0 || x >= w.info.Width || y >= w.info.Height {
		return
	}
	var c [4]byte
	switch w.info.PixelFormat {
	case PixelFormatRGB:
		c = [4]byte{intensity, intensity, intensity / 2, 0}
	case PixelFormatBGR:
		c = [4]byte{intensity / 2, intensity, intensity, 0}
	case PixelFormatU8:
		if intensity > 200 {
			c[0] = 0xf
		}
	}
	bpp := w.info.BytesPerPixel
	off := (y*w.info.Stride + x) * bpp
	copy(w.buf[off:off+bpp], c[:bpp])
}

// Write renders p as UTF-8 text. Invalid sequences render as the
// replacement glyph.
func (w *FrameBufferWriter) Write(p []byte) (int, error) {
	for i := 0; i < len(p); {
		r, n := utf8.DecodeRune(p[i:])
		w.writeChar(r)
		i += n
	}
	return len(p), nil
}

// WriteString is Write for strings.
func (w *FrameBufferWriter) WriteString(s string) (int, error) {
	for _, r := range s {
		w.writeChar(r)
	}
	return len(s), nil
}

// Snapshot converts the framebuffer contents to an RGBA image.
func (w *FrameBufferWriter) Snapshot() *image.RGBA { return Snapshot(w.buf, w.info) }

// Snapshot converts a raw framebuffer laid out as info to an RGBA image.
// The caller must keep writers off buf meanwhile.
func Snapshot(buf []byte, info FrameBufferInfo) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, info.Width, info.Height))
	bpp := info.BytesPerPixel
	for y := 0; y < info.Height; y++ {
		for x := 0; x < info.Width; x++ {
			off := (y*info.Stride + x) * bpp
			px := buf[off : off+bpp]
			var c color.RGBA
			switch info.PixelFormat {
			case PixelFormatRGB:
				c = color.RGBA{R: px[0], G: px[1], B: px[2], A: 0xff}
			case PixelFormatBGR:
				c = color.RGBA{R: px[2], G: px[1], B: px[0], A: 0xff}
			case PixelFormatU8:
				v := px[0] * 17
				c = color.RGBA{R: v, G: v, B: v, A: 0xff}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
