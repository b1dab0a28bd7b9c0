package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Wire constants shared by sender and receiver. These match the LiveKit
// agents avatar protocol, so a Go endpoint can talk to a Python one.
const (
	// TopicVideoStream is the byte stream topic carrying video segments.
	TopicVideoStream = "lk.video_stream"

	// RPCClearBuffer asks the receiver to discard buffered, unplayed video.
	RPCClearBuffer = "lk.clear_buffer_video"

	// RPCPlaybackFinished notifies the sender that playback completed.
	RPCPlaybackFinished = "lk.playback_finished_video"
)

// Stream attribute keys.
const (
	AttrWidth  = "width"
	AttrHeight = "height"
	AttrType   = "type"
)

// Defaults applied when a stream omits an attribute.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// StreamFormat describes the frames carried by one video segment stream.
type StreamFormat struct {
	Width  int
	Height int
	Type   VideoBufferType
}

// FrameSize returns the byte length of a single frame in this format.
func (sf StreamFormat) FrameSize() int {
	return sf.Width * sf.Height * sf.Type.BytesPerPixel()
}

// Attributes encodes the format as byte stream attributes.
func (sf StreamFormat) Attributes() map[string]string {
	return map[string]string{
		AttrWidth:  strconv.Itoa(sf.Width),
		AttrHeight: strconv.Itoa(sf.Height),
		AttrType:   strconv.Itoa(int(sf.Type)),
	}
}

// ParseStreamFormat decodes byte stream attributes into a format, applying
// defaults for missing keys and rejecting values that cannot describe a
// frame.
func ParseStreamFormat(attrs map[string]string) (StreamFormat, error) {
	sf := StreamFormat{Width: DefaultWidth, Height: DefaultHeight, Type: BufferRGBA}

	if v, ok := attrs[AttrWidth]; ok {
		w, err := strconv.Atoi(v)
		if err != nil {
			return StreamFormat{}, fmt.Errorf("invalid width attribute %q: %w", v, err)
		}
		sf.Width = w
	}
	if v, ok := attrs[AttrHeight]; ok {
		h, err := strconv.Atoi(v)
		if err != nil {
			return StreamFormat{}, fmt.Errorf("invalid height attribute %q: %w", v, err)
		}
		sf.Height = h
	}
	if v, ok := attrs[AttrType]; ok {
		t, err := ParseVideoBufferType(v)
		if err != nil {
			return StreamFormat{}, err
		}
		sf.Type = t
	}

	if sf.Width <= 0 || sf.Height <= 0 {
		return StreamFormat{}, fmt.Errorf("invalid stream dimensions %dx%d", sf.Width, sf.Height)
	}
	return sf, nil
}

// PlaybackFinishedEvent is the payload of the playback-finished RPC.
type PlaybackFinishedEvent struct {
	PlaybackPosition float64 `json:"playback_position"` // Seconds of video played
	Interrupted      bool    `json:"interrupted"`       // True if playback was cut short
}

// Marshal encodes the event as the RPC payload.
func (e PlaybackFinishedEvent) Marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode playback finished event: %w", err)
	}
	return string(b), nil
}

// ParsePlaybackFinishedEvent decodes an RPC payload.
func ParsePlaybackFinishedEvent(payload string) (PlaybackFinishedEvent, error) {
	var e PlaybackFinishedEvent
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return PlaybackFinishedEvent{}, fmt.Errorf("failed to decode playback finished event: %w", err)
	}
	return e, nil
}
