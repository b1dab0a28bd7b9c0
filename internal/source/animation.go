// Package source provides video frame producers for the example binaries:
// a synthetic animation generator and an ffmpeg-backed file decoder.
package source

import (
	"context"
	"math"
	"time"

	"vidlink/pkg/models"
)

// Animation generates a moving color-wave RGBA pattern, with a white marker
// block stamped on every tenth frame. Useful for exercising a link without
// a capture device.
type Animation struct {
	width  int
	height int
	fps    float64
	frame  int
}

// NewAnimation creates a generator at the given size and frame rate.
func NewAnimation(width, height int, fps float64) *Animation {
	return &Animation{width: width, height: height, fps: fps}
}

// FrameInterval returns the pacing interval for the configured rate.
func (a *Animation) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / a.fps)
}

// NextFrame renders the next frame of the animation.
func (a *Animation) NextFrame() *models.VideoFrame {
	t := float64(a.frame) / 30.0
	data := make([]byte, a.width*a.height*4)

	for y := 0; y < a.height; y++ {
		row := y * a.width * 4
		for x := 0; x < a.width; x++ {
			i := row + x*4
			data[i] = wave(float64(x)/30 + t)
			data[i+1] = wave(float64(y)/20 + t*0.7)
			data[i+2] = wave(float64(x+y)/40 + t*1.3)
			data[i+3] = 255
		}
	}

	// Marker block every tenth frame.
	if a.frame%10 == 0 {
		const pos, size = 20, 40
		for y := pos; y < pos+size && y < a.height; y++ {
			for x := pos; x < pos+size && x < a.width; x++ {
				i := (y*a.width + x) * 4
				data[i], data[i+1], data[i+2], data[i+3] = 255, 255, 255, 255
			}
		}
	}

	a.frame++
	return &models.VideoFrame{
		Width:  a.width,
		Height: a.height,
		Type:   models.BufferRGBA,
		Data:   data,
	}
}

// Frames produces n frames paced at the configured rate. The channel closes
// after the last frame or when ctx is done.
func (a *Animation) Frames(ctx context.Context, n int) <-chan *models.VideoFrame {
	out := make(chan *models.VideoFrame)

	go func() {
		defer close(out)
		ticker := time.NewTicker(a.FrameInterval())
		defer ticker.Stop()

		for i := 0; i < n; i++ {
			frame := a.NextFrame()
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func wave(v float64) byte {
	return byte(127 + 127*math.Sin(v))
}
