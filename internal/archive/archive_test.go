package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"vidlink/pkg/models"
)

func makeFrame(fill byte) *models.VideoFrame {
	return &models.VideoFrame{
		Width:  2,
		Height: 2,
		Type:   models.BufferRGBA,
		Data:   bytes.Repeat([]byte{fill}, 16),
	}
}

func TestLocalStorage(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}

	if err := storage.Write("link/segment_0.vseg", []byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := storage.Read("link/segment_0.vseg")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Read = %q, want hello", data)
	}

	exists, err := storage.Exists("link/segment_0.vseg")
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v; want true", exists, err)
	}

	files, err := storage.List("link")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 1 || files[0] != "segment_0.vseg" {
		t.Errorf("List = %v", files)
	}

	if err := storage.Delete("link/segment_0.vseg"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = storage.Exists("link/segment_0.vseg")
	if err != nil || exists {
		t.Errorf("Exists after delete = %v, %v; want false", exists, err)
	}

	// Deleting a missing file is not an error.
	if err := storage.Delete("link/segment_0.vseg"); err != nil {
		t.Errorf("Delete of missing file = %v", err)
	}
}

func TestSegmentRoundTrip(t *testing.T) {
	frames := []*models.VideoFrame{makeFrame(1), makeFrame(2), makeFrame(3)}

	data, err := encodeSegment(frames)
	if err != nil {
		t.Fatalf("encodeSegment failed: %v", err)
	}

	decoded, err := DecodeSegment(data)
	if err != nil {
		t.Fatalf("DecodeSegment failed: %v", err)
	}
	if len(decoded) != len(frames) {
		t.Fatalf("decoded %d frames, want %d", len(decoded), len(frames))
	}
	for i, f := range decoded {
		if f.Width != 2 || f.Height != 2 || f.Type != models.BufferRGBA {
			t.Errorf("frame %d format = %dx%d %s", i, f.Width, f.Height, f.Type)
		}
		if !bytes.Equal(f.Data, frames[i].Data) {
			t.Errorf("frame %d data mismatch", i)
		}
	}
}

func TestDecodeSegmentErrors(t *testing.T) {
	good, err := encodeSegment([]*models.VideoFrame{makeFrame(1)})
	if err != nil {
		t.Fatalf("encodeSegment failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), good[4:]...)},
		{"truncated frames", good[:len(good)-4]},
		{"header only", good[:24]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSegment(tt.data); err == nil {
				t.Error("DecodeSegment accepted malformed data")
			}
		})
	}
}

func TestRecorderSlidingWindow(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}
	rec := NewRecorder(storage, "link", 2)

	for seg := byte(0); seg < 3; seg++ {
		rec.Record(makeFrame(seg))
		rec.Record(makeFrame(seg))
		if err := rec.EndSegment(); err != nil {
			t.Fatalf("EndSegment %d failed: %v", seg, err)
		}
	}

	// Oldest segment is evicted past the window.
	exists, _ := storage.Exists("link/segment_0.vseg")
	if exists {
		t.Error("segment 0 should have been evicted")
	}
	for _, path := range []string{"link/segment_1.vseg", "link/segment_2.vseg"} {
		if exists, _ := storage.Exists(path); !exists {
			t.Errorf("%s missing", path)
		}
	}

	segments := rec.Segments()
	if len(segments) != 2 {
		t.Fatalf("Segments = %d entries, want 2", len(segments))
	}
	if segments[0].SequenceNum != 1 || segments[1].SequenceNum != 2 {
		t.Errorf("segment sequence = %d, %d", segments[0].SequenceNum, segments[1].SequenceNum)
	}
	if segments[0].Frames != 2 {
		t.Errorf("segment frames = %d, want 2", segments[0].Frames)
	}

	// The index matches the in-memory window.
	indexData, err := storage.Read("link/index.json")
	if err != nil {
		t.Fatalf("index read failed: %v", err)
	}
	var index []SegmentInfo
	if err := json.Unmarshal(indexData, &index); err != nil {
		t.Fatalf("index decode failed: %v", err)
	}
	if len(index) != 2 || index[0].SequenceNum != 1 {
		t.Errorf("index = %+v", index)
	}

	// Archived segments decode back to the original frames.
	data, err := storage.Read("link/segment_2.vseg")
	if err != nil {
		t.Fatalf("segment read failed: %v", err)
	}
	frames, err := DecodeSegment(data)
	if err != nil {
		t.Fatalf("DecodeSegment failed: %v", err)
	}
	if len(frames) != 2 || frames[0].Data[0] != 2 {
		t.Errorf("decoded frames = %d, first byte %d", len(frames), frames[0].Data[0])
	}
}

// scriptedSource replays a fixed sequence of Next results.
type scriptedSource struct {
	frames []*models.VideoFrame
	errs   []error
	pos    int
}

func (s *scriptedSource) Next(ctx context.Context) (*models.VideoFrame, error) {
	if s.pos >= len(s.errs) {
		return nil, context.Canceled
	}
	frame, err := s.frames[s.pos], s.errs[s.pos]
	s.pos++
	return frame, err
}

func TestRecorderRun(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}
	rec := NewRecorder(storage, "link", 0)

	segmentEnd := errors.New("segment end")
	src := &scriptedSource{
		frames: []*models.VideoFrame{makeFrame(1), makeFrame(2), nil, makeFrame(3), nil},
		errs:   []error{nil, nil, segmentEnd, nil, segmentEnd},
	}

	ctx := context.Background()
	if err := rec.Run(ctx, src, segmentEnd); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	segments := rec.Segments()
	if len(segments) != 2 {
		t.Fatalf("Segments = %d entries, want 2", len(segments))
	}
	if segments[0].Frames != 2 || segments[1].Frames != 1 {
		t.Errorf("segment frames = %d, %d; want 2, 1", segments[0].Frames, segments[1].Frames)
	}
}

func TestRecorderSkipsEmptySegments(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}
	rec := NewRecorder(storage, "link", 0)

	if err := rec.EndSegment(); err != nil {
		t.Fatalf("EndSegment failed: %v", err)
	}
	if got := rec.Segments(); len(got) != 0 {
		t.Errorf("Segments = %+v, want empty", got)
	}
	if exists, _ := storage.Exists("link/index.json"); exists {
		t.Error("index written for empty segment")
	}
}
