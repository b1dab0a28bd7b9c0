package archive

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vidlink/pkg/models"
)

// Segment file layout: a fixed header followed by the raw frame buffers
// back to back.
var segmentMagic = [4]byte{'V', 'S', 'E', 'G'}

const segmentVersion = 1

// segmentHeader is the binary header of a .vseg file.
type segmentHeader struct {
	Magic      [4]byte
	Version    uint32
	Width      uint32
	Height     uint32
	BufferType uint32
	FrameCount uint32
}

// SegmentInfo describes one archived segment in the index.
type SegmentInfo struct {
	SequenceNum uint64    `json:"sequenceNum"`
	Frames      int       `json:"frames"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	BufferType  int       `json:"bufferType"`
	FileSize    int64     `json:"fileSize"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FrameSource is the consumption side of a video receiver: Next returns
// frames and marks segment boundaries with the given sentinel error.
type FrameSource interface {
	Next(ctx context.Context) (*models.VideoFrame, error)
}

// Recorder archives completed segments to a storage backend, keeping a
// sliding window of the most recent ones.
type Recorder struct {
	storage     Storage
	name        string // directory prefix for this link
	maxSegments int
	log         *logrus.Entry

	mu       sync.Mutex
	buffered []*models.VideoFrame
	segments []SegmentInfo
	seq      uint64
}

// NewRecorder creates a recorder writing under name/ in storage. When
// maxSegments is positive, older segment files are deleted as new ones
// complete.
func NewRecorder(storage Storage, name string, maxSegments int) *Recorder {
	return &Recorder{
		storage:     storage,
		name:        name,
		maxSegments: maxSegments,
		log: logrus.WithFields(logrus.Fields{
			"component": "segment-recorder",
			"name":      name,
		}),
	}
}

// Record buffers one frame of the current segment.
func (r *Recorder) Record(frame *models.VideoFrame) {
	r.mu.Lock()
	r.buffered = append(r.buffered, frame)
	r.mu.Unlock()
}

// EndSegment finalizes the current segment: buffered frames are written as
// one segment file and the index is updated. Empty segments are skipped.
func (r *Recorder) EndSegment() error {
	r.mu.Lock()
	frames := r.buffered
	r.buffered = nil
	seq := r.seq
	r.seq++
	r.mu.Unlock()

	if len(frames) == 0 {
		return nil
	}

	data, err := encodeSegment(frames)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("%s/segment_%d.vseg", r.name, seq)
	if err := r.storage.Write(path, data); err != nil {
		return fmt.Errorf("failed to write segment %d: %w", seq, err)
	}

	first := frames[0]
	info := SegmentInfo{
		SequenceNum: seq,
		Frames:      len(frames),
		Width:       first.Width,
		Height:      first.Height,
		BufferType:  int(first.Type),
		FileSize:    int64(len(data)),
		CreatedAt:   time.Now().UTC(),
	}

	r.mu.Lock()
	r.segments = append(r.segments, info)
	var evicted *SegmentInfo
	if r.maxSegments > 0 && len(r.segments) > r.maxSegments {
		evicted = &r.segments[0]
		r.segments = r.segments[1:]
	}
	index := make([]SegmentInfo, len(r.segments))
	copy(index, r.segments)
	r.mu.Unlock()

	if evicted != nil {
		old := fmt.Sprintf("%s/segment_%d.vseg", r.name, evicted.SequenceNum)
		if err := r.storage.Delete(old); err != nil {
			r.log.WithError(err).WithField("path", old).Warn("failed to delete old segment")
		}
	}

	if err := r.writeIndex(index); err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{
		"segment": seq,
		"frames":  len(frames),
		"bytes":   len(data),
	}).Info("archived video segment")
	return nil
}

// Run drains src until ctx is done or src is closed, archiving each
// completed segment. segmentEnd is the sentinel error src uses for
// boundaries.
func (r *Recorder) Run(ctx context.Context, src FrameSource, segmentEnd error) error {
	for {
		frame, err := src.Next(ctx)
		switch {
		case err == nil:
			r.Record(frame)
		case errors.Is(err, segmentEnd):
			if err := r.EndSegment(); err != nil {
				r.log.WithError(err).Error("failed to archive segment")
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return r.EndSegment()
		default:
			ferr := r.EndSegment()
			if ferr != nil {
				r.log.WithError(ferr).Error("failed to archive final segment")
			}
			return err
		}
	}
}

// Segments returns the current index.
func (r *Recorder) Segments() []SegmentInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SegmentInfo, len(r.segments))
	copy(out, r.segments)
	return out
}

func (r *Recorder) writeIndex(index []SegmentInfo) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode segment index: %w", err)
	}
	path := fmt.Sprintf("%s/index.json", r.name)
	if err := r.storage.Write(path, data); err != nil {
		return fmt.Errorf("failed to write segment index: %w", err)
	}
	return nil
}

// encodeSegment serializes frames into the .vseg layout. All frames of a
// segment share one format, so the header is taken from the first.
func encodeSegment(frames []*models.VideoFrame) ([]byte, error) {
	first := frames[0]
	header := segmentHeader{
		Magic:      segmentMagic,
		Version:    segmentVersion,
		Width:      uint32(first.Width),
		Height:     uint32(first.Height),
		BufferType: uint32(first.Type),
		FrameCount: uint32(len(frames)),
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, header); err != nil {
		return nil, fmt.Errorf("failed to encode segment header: %w", err)
	}
	for _, f := range frames {
		buf.Write(f.Data)
	}
	return buf.Bytes(), nil
}

// DecodeSegment parses a .vseg file back into frames.
func DecodeSegment(data []byte) ([]*models.VideoFrame, error) {
	r := bytes.NewReader(data)
	var header segmentHeader
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to decode segment header: %w", err)
	}
	if header.Magic != segmentMagic {
		return nil, errors.New("not a video segment file")
	}
	if header.Version != segmentVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	format := models.StreamFormat{
		Width:  int(header.Width),
		Height: int(header.Height),
		Type:   models.VideoBufferType(header.BufferType),
	}
	if format.FrameSize() <= 0 {
		return nil, fmt.Errorf("invalid segment format %dx%d type %d",
			header.Width, header.Height, header.BufferType)
	}

	frames := make([]*models.VideoFrame, 0, header.FrameCount)
	for i := uint32(0); i < header.FrameCount; i++ {
		buf := make([]byte, format.FrameSize())
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("segment truncated at frame %d: %w", i, err)
		}
		frames = append(frames, &models.VideoFrame{
			Width:  format.Width,
			Height: format.Height,
			Type:   format.Type,
			Data:   buf,
		})
	}
	return frames, nil
}
