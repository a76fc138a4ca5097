package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/sirreidlos/amarui/internal/errors"
)

func testInfo(format PixelFormat, bpp, w, h int) FrameBufferInfo {
	return FrameBufferInfo{
		ByteLen:       w * h * bpp,
		Width:         w,
		Height:        h,
		PixelFormat:   format,
		BytesPerPixel: bpp,
		Stride:        w,
	}
}

func litPixels(buf []byte) int {
	n := 0
	for _, b := range buf {
		if b != 0 {
			n++
		}
	}
	return n
}

func TestFrameBufferWriterRendersGlyphs(t *testing.T) {
	info := testInfo(PixelFormatRGB, 4, 64, 32)
	buf := make([]byte, info.ByteLen)
	w, err := NewFrameBufferWriter(buf, info)
	require.NoError(t, err)

	x0, y0 := w.Position()
	assert.Equal(t, BorderPadding, x0)
	assert.Equal(t, BorderPadding, y0)

	w.WriteString("A")
	assert.NotZero(t, litPixels(buf))
	x, _ := w.Position()
	assert.Equal(t, BorderPadding+font.Width+LetterSpacing, x)

	w.WriteString(" ")
	x, _ = w.Position()
	assert.Equal(t, BorderPadding+2*(font.Width+LetterSpacing), x)
}

func TestFrameBufferWriterNewlineAndWrap(t *testing.T) {
	info := testInfo(PixelFormatBGR, 3, 40, 64)
	w, err := NewFrameBufferWriter(make([]byte, info.ByteLen), info)
	require.NoError(t, err)

	w.WriteString("ab\n")
	x, y := w.Position()
	assert.Equal(t, BorderPadding, x)
	assert.Equal(t, BorderPadding+font.Height+LineSpacing, y)

	// 40px holds five 7px cells after padding
	w.WriteString("abcdef")
	x, y = w.Position()
	assert.Equal(t, BorderPadding+2*(font.Height+LineSpacing), y)
	assert.Equal(t, BorderPadding+font.Width, x)

	w.WriteString("\rz")
	x, _ = w.Position()
	assert.Equal(t, BorderPadding+font.Width, x)
}

func TestFrameBufferWriterClearsAtBottom(t *testing.T) {
	info := testInfo(PixelFormatU8, 1, 32, 2*(font.Height+LineSpacing)+BorderPadding)
	buf := make([]byte, info.ByteLen)
	w, err := NewFrameBufferWriter(buf, info)
	require.NoError(t, err)

	w.WriteString("a\nb\nc")
	_, y := w.Position()
	assert.Equal(t, BorderPadding, y, "writer restarts at the top once the screen is full")
	for _, b := range buf {
		require.Contains(t, []byte{0, 0xf}, b)
	}
}

func TestFrameBufferPixelFormats(t *testing.T) {
	for _, tc := range []struct {
		format PixelFormat
		bpp    int
		want   [3]byte
	}{
		{PixelFormatRGB, 4, [3]byte{0xff, 0xff, 0x7f}},
		{PixelFormatBGR, 3, [3]byte{0x7f, 0xff, 0xff}},
	} {
		info := testInfo(tc.format, tc.bpp, 4, 4)
		buf := make([]byte, info.ByteLen)
		w, err := NewFrameBufferWriter(buf, info)
		require.NoError(t, err)
		w.writePixel(1, 2, 0xff)
		off := (2*info.Stride + 1) * tc.bpp
		assert.Equal(t, tc.want[:], buf[off:off+3], "%v", tc.format)

		img := w.Snapshot()
		r, g, b, _ := img.At(1, 2).RGBA()
		assert.Equal(t, uint32(0xffff), g)
		assert.NotZero(t, r)
		assert.NotZero(t, b)
	}
}

func TestFrameBufferWriterRejectsBadGeometry(t *testing.T) {
	info := testInfo(PixelFormatUnknown, 4, 8, 8)
	_, err := NewFrameBufferWriter(make([]byte, info.ByteLen), info)
	assert.True(t, kerrors.HasCode(err, kerrors.CodeInvalidConfig))

	info = testInfo(PixelFormatRGB, 4, 8, 8)
	_, err = NewFrameBufferWriter(make([]byte, info.ByteLen-1), info)
	assert.Error(t, err)

	info = testInfo(PixelFormatU8, 2, 8, 8)
	_, err = NewFrameBufferWriter(make([]byte, info.ByteLen), info)
	assert.Error(t, err)
}

func TestFrameBufferInfoString(t *testing.T) {
	info := testInfo(PixelFormatBGR, 4, 1280, 720)
	assert.Equal(t,
		"FrameBufferInfo { byte_len: 3686400, width: 1280, height: 720, pixel_format: Bgr, bytes_per_pixel: 4, stride: 1280 }",
		info.String())
}

func TestParsePixelFormat(t *testing.T) {
	f, err := ParsePixelFormat("bgr")
	require.NoError(t, err)
	assert.Equal(t, PixelFormatBGR, f)
	_, err = ParsePixelFormat("cmyk")
	assert.Error(t, err)
}
