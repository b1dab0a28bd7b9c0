package models

import (
	"fmt"
	"strconv"
)

// VideoBufferType identifies the pixel layout of a raw video frame buffer.
// The integer values travel in the stream attributes, so they must stay
// stable across versions.
type VideoBufferType int

const (
	BufferRGBA  VideoBufferType = 0
	BufferABGR  VideoBufferType = 1
	BufferARGB  VideoBufferType = 2
	BufferBGRA  VideoBufferType = 3
	BufferRGB24 VideoBufferType = 4
)

// BytesPerPixel returns the per-pixel byte width of the buffer type.
func (t VideoBufferType) BytesPerPixel() int {
	switch t {
	case BufferRGB24:
		return 3
	case BufferRGBA, BufferABGR, BufferARGB, BufferBGRA:
		return 4
	default:
		return 0
	}
}

func (t VideoBufferType) String() string {
	switch t {
	case BufferRGBA:
		return "rgba"
	case BufferABGR:
		return "abgr"
	case BufferARGB:
		return "argb"
	case BufferBGRA:
		return "bgra"
	case BufferRGB24:
		return "rgb24"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseVideoBufferType parses the wire encoding of a buffer type.
func ParseVideoBufferType(s string) (VideoBufferType, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid buffer type %q: %w", s, err)
	}
	t := VideoBufferType(v)
	if t.BytesPerPixel() == 0 {
		return 0, fmt.Errorf("unsupported buffer type %d", v)
	}
	return t, nil
}

// VideoFrame is a single raw video frame. The payload is an opaque pixel
// buffer whose length is fully determined by Width, Height and Type.
type VideoFrame struct {
	Width  int             // Frame width in pixels
	Height int             // Frame height in pixels
	Type   VideoBufferType // Pixel layout of Data
	Data   []byte          // Raw pixel buffer, len == Size()
}

// Size returns the expected payload length in bytes.
func (f *VideoFrame) Size() int {
	return f.Width * f.Height * f.Type.BytesPerPixel()
}

// Validate checks that the frame dimensions are sane and the payload length
// matches them.
func (f *VideoFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	if f.Type.BytesPerPixel() == 0 {
		return fmt.Errorf("unsupported buffer type %d", int(f.Type))
	}
	if len(f.Data) != f.Size() {
		return fmt.Errorf("frame payload is %d bytes, want %d for %dx%d %s",
			len(f.Data), f.Size(), f.Width, f.Height, f.Type)
	}
	return nil
}
