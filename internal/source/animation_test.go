package source

import (
	"context"
	"testing"
	"time"

	"vidlink/pkg/models"
)

func TestAnimationFrameFormat(t *testing.T) {
	anim := NewAnimation(80, 64, 30)

	frame := anim.NextFrame()
	if frame.Width != 80 || frame.Height != 64 {
		t.Errorf("frame size = %dx%d, want 80x64", frame.Width, frame.Height)
	}
	if frame.Type != models.BufferRGBA {
		t.Errorf("frame type = %s, want RGBA", frame.Type)
	}
	if err := frame.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestAnimationOpaqueAlpha(t *testing.T) {
	anim := NewAnimation(16, 16, 30)
	frame := anim.NextFrame()

	for i := 3; i < len(frame.Data); i += 4 {
		if frame.Data[i] != 255 {
			t.Fatalf("alpha at %d = %d, want 255", i, frame.Data[i])
		}
	}
}

func TestAnimationMarkerBlock(t *testing.T) {
	anim := NewAnimation(80, 80, 30)

	// Frame 0 carries the marker, frames 1-9 do not.
	markerPixel := func(frame *models.VideoFrame) bool {
		i := (30*frame.Width + 30) * 4
		return frame.Data[i] == 255 && frame.Data[i+1] == 255 && frame.Data[i+2] == 255
	}

	if !markerPixel(anim.NextFrame()) {
		t.Error("frame 0 missing marker block")
	}
	for n := 1; n < 10; n++ {
		if markerPixel(anim.NextFrame()) {
			t.Errorf("frame %d unexpectedly carries marker block", n)
		}
	}
	if !markerPixel(anim.NextFrame()) {
		t.Error("frame 10 missing marker block")
	}
}

func TestAnimationFramesVary(t *testing.T) {
	anim := NewAnimation(32, 32, 30)
	first := anim.NextFrame()
	second := anim.NextFrame()

	same := true
	for i := range first.Data {
		if first.Data[i] != second.Data[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("consecutive frames are identical")
	}
}

func TestAnimationFrameInterval(t *testing.T) {
	anim := NewAnimation(32, 32, 25)
	if got := anim.FrameInterval(); got != 40*time.Millisecond {
		t.Errorf("FrameInterval = %v, want 40ms", got)
	}
}

func TestAnimationFramesChannel(t *testing.T) {
	anim := NewAnimation(8, 8, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	count := 0
	for range anim.Frames(ctx, 5) {
		count++
	}
	if count != 5 {
		t.Errorf("received %d frames, want 5", count)
	}
}

func TestAnimationFramesStopOnCancel(t *testing.T) {
	anim := NewAnimation(8, 8, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	frames := anim.Frames(ctx, 1000)
	<-frames
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed after cancel")
		}
	}
}
