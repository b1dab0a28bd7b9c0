package models

import (
	"testing"
)

func TestParseStreamFormat(t *testing.T) {
	tests := []struct {
		name    string
		attrs   map[string]string
		want    StreamFormat
		wantErr bool
	}{
		{
			name:  "full attributes",
			attrs: map[string]string{"width": "1280", "height": "720", "type": "4"},
			want:  StreamFormat{Width: 1280, Height: 720, Type: BufferRGB24},
		},
		{
			name:  "defaults applied",
			attrs: map[string]string{},
			want:  StreamFormat{Width: 640, Height: 480, Type: BufferRGBA},
		},
		{
			name:  "partial attributes",
			attrs: map[string]string{"width": "320"},
			want:  StreamFormat{Width: 320, Height: 480, Type: BufferRGBA},
		},
		{
			name:    "garbage width",
			attrs:   map[string]string{"width": "abc"},
			wantErr: true,
		},
		{
			name:    "negative height",
			attrs:   map[string]string{"height": "-1"},
			wantErr: true,
		},
		{
			name:    "unknown buffer type",
			attrs:   map[string]string{"type": "99"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStreamFormat(tt.attrs)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStreamFormat failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStreamFormatRoundTrip(t *testing.T) {
	sf := StreamFormat{Width: 800, Height: 600, Type: BufferBGRA}
	got, err := ParseStreamFormat(sf.Attributes())
	if err != nil {
		t.Fatalf("ParseStreamFormat failed: %v", err)
	}
	if got != sf {
		t.Errorf("got %+v, want %+v", got, sf)
	}
}

func TestVideoFrameValidate(t *testing.T) {
	valid := &VideoFrame{Width: 4, Height: 2, Type: BufferRGBA, Data: make([]byte, 32)}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid frame rejected: %v", err)
	}

	short := &VideoFrame{Width: 4, Height: 2, Type: BufferRGBA, Data: make([]byte, 31)}
	if err := short.Validate(); err == nil {
		t.Error("short payload accepted")
	}

	zero := &VideoFrame{Width: 0, Height: 2, Type: BufferRGBA}
	if err := zero.Validate(); err == nil {
		t.Error("zero width accepted")
	}
}

func TestPlaybackFinishedEventWire(t *testing.T) {
	// The JSON keys are the cross-implementation wire format.
	payload := `{"playback_position": 12.5, "interrupted": true}`
	event, err := ParsePlaybackFinishedEvent(payload)
	if err != nil {
		t.Fatalf("ParsePlaybackFinishedEvent failed: %v", err)
	}
	if event.PlaybackPosition != 12.5 || !event.Interrupted {
		t.Errorf("got %+v", event)
	}

	if _, err := ParsePlaybackFinishedEvent("not json"); err == nil {
		t.Error("invalid payload accepted")
	}
}

func TestBytesPerPixel(t *testing.T) {
	if got := BufferRGB24.BytesPerPixel(); got != 3 {
		t.Errorf("rgb24 bpp = %d, want 3", got)
	}
	if got := BufferRGBA.BytesPerPixel(); got != 4 {
		t.Errorf("rgba bpp = %d, want 4", got)
	}
	if got := VideoBufferType(42).BytesPerPixel(); got != 0 {
		t.Errorf("unknown bpp = %d, want 0", got)
	}
}
