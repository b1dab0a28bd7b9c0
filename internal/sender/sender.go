// Package sender streams video frames to a remote participant over the
// room's byte stream facility. A new byte stream is opened lazily on the
// first frame after a flush, carrying the frame format in its attributes;
// Flush closes it to mark the segment boundary.
package sender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vidlink/internal/metrics"
	"vidlink/internal/room"
	"vidlink/pkg/models"
)

// Options configures a Sender.
type Options struct {
	// DestinationIdentity is the participant the video is sent to.
	DestinationIdentity string

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics
}

// PlaybackFinishedListener receives playback completion reports from the
// destination.
type PlaybackFinishedListener func(event models.PlaybackFinishedEvent)

// Sender streams frames to one destination identity.
type Sender struct {
	room room.Room
	opts Options
	log  *logrus.Entry

	stats models.LinkStatsCollector

	mu           sync.Mutex
	writer       room.ByteStreamWriter
	streamName   string
	pushedFrames int
	listeners    map[int]PlaybackFinishedListener
	nextListener int
	closed       bool

	flushes sync.WaitGroup // in-flight asynchronous stream closes
}

// New creates a sender and registers the playback-finished RPC handler.
func New(rm room.Room, opts Options) (*Sender, error) {
	if opts.DestinationIdentity == "" {
		return nil, errors.New("destination identity is required")
	}

	s := &Sender{
		room: rm,
		opts: opts,
		log: logrus.WithFields(logrus.Fields{
			"component":   "video-sender",
			"identity":    rm.LocalIdentity(),
			"destination": opts.DestinationIdentity,
		}),
		listeners: make(map[int]PlaybackFinishedListener),
	}

	if err := rm.RegisterRPCMethod(models.RPCPlaybackFinished, s.handlePlaybackFinished); err != nil {
		return nil, fmt.Errorf("failed to register playback finished handler: %w", err)
	}

	return s, nil
}

func (s *Sender) handlePlaybackFinished(inv room.RPCInvocation) (string, error) {
	if inv.CallerIdentity != s.opts.DestinationIdentity {
		s.log.WithFields(logrus.Fields{
			"caller_identity":   inv.CallerIdentity,
			"expected_identity": s.opts.DestinationIdentity,
		}).Warn("playback finished report from unexpected participant")
		s.opts.Metrics.RecordRPC(models.RPCPlaybackFinished, errors.New("rejected"))
		return "reject", nil
	}

	event, err := models.ParsePlaybackFinishedEvent(inv.Payload)
	if err != nil {
		s.opts.Metrics.RecordRPC(models.RPCPlaybackFinished, err)
		return "", err
	}

	s.mu.Lock()
	listeners := make([]PlaybackFinishedListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}

	s.opts.Metrics.RecordRPC(models.RPCPlaybackFinished, nil)
	s.opts.Metrics.RecordPlaybackFinished(event.PlaybackPosition, event.Interrupted)
	return "ok", nil
}

// AddPlaybackFinishedListener registers a callback invoked when the
// destination acknowledges playback completion. The returned function
// removes it.
func (s *Sender) AddPlaybackFinishedListener(fn PlaybackFinishedListener) (remove func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SendFrame transmits one frame. The first frame after a flush opens a new
// segment stream using that frame's format. The lock is not held across the
// transport write, so a slow destination does not block Flush or the
// playback-finished handler; a Flush racing a write makes the write fail.
func (s *Sender) SendFrame(ctx context.Context, frame *models.VideoFrame) error {
	if err := frame.Validate(); err != nil {
		return err
	}

	writer, err := s.segmentWriter(ctx, frame)
	if err != nil {
		return err
	}

	if err := writer.Write(ctx, frame.Data); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}

	s.mu.Lock()
	s.pushedFrames++
	s.mu.Unlock()

	s.stats.RecordSent(len(frame.Data))
	s.opts.Metrics.RecordFrameSent(len(frame.Data))
	return nil
}

// segmentWriter returns the current segment's stream, opening one from the
// frame's format if no segment is in progress.
func (s *Sender) segmentWriter(ctx context.Context, frame *models.VideoFrame) (room.ByteStreamWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("sender closed")
	}

	if s.writer == nil {
		name := "VIDEO_" + shortID()
		writer, err := s.room.OpenByteStream(ctx, room.StreamOptions{
			Name:                  name,
			Topic:                 models.TopicVideoStream,
			DestinationIdentities: []string{s.opts.DestinationIdentity},
			Attributes: models.StreamFormat{
				Width:  frame.Width,
				Height: frame.Height,
				Type:   frame.Type,
			}.Attributes(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open video stream: %w", err)
		}
		s.writer = writer
		s.streamName = name
		s.pushedFrames = 0
		s.opts.Metrics.SegmentOpened()
		s.log.WithField("stream", name).Debug("video segment opened")
	}
	return s.writer, nil
}

// Flush marks the end of the current segment. The stream close runs
// asynchronously; Close waits for all of them.
func (s *Sender) Flush() {
	s.mu.Lock()
	writer := s.writer
	name := s.streamName
	pushed := s.pushedFrames
	s.writer = nil
	s.streamName = ""
	s.pushedFrames = 0
	s.mu.Unlock()

	if writer == nil {
		return
	}

	s.flushes.Add(1)
	go func() {
		defer s.flushes.Done()
		if err := writer.Close(); err != nil {
			s.log.WithError(err).WithField("stream", name).Warn("failed to close video stream")
			return
		}
		s.log.WithFields(logrus.Fields{
			"stream":        name,
			"pushed_frames": pushed,
		}).Debug("video segment flushed")
	}()

	s.stats.RecordSegmentSent()
	s.opts.Metrics.RecordSegmentSent(pushed)
	s.opts.Metrics.SegmentClosed()
}

// ClearBuffer asks the destination to discard buffered, unplayed video.
func (s *Sender) ClearBuffer(ctx context.Context) error {
	resp, err := s.room.PerformRPC(ctx, s.opts.DestinationIdentity, models.RPCClearBuffer, "")
	s.opts.Metrics.RecordRPC(models.RPCClearBuffer, err)
	if err != nil {
		return fmt.Errorf("failed to clear remote buffer: %w", err)
	}
	if resp != "ok" {
		return fmt.Errorf("clear buffer rejected: %q", resp)
	}
	return nil
}

// Stats returns a snapshot of the sender counters.
func (s *Sender) Stats() models.LinkStats {
	return s.stats.Snapshot()
}

// Close flushes the current segment and waits for in-flight stream closes.
func (s *Sender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Flush()
	s.flushes.Wait()
	return nil
}

// shortID returns a compact unique suffix for stream names.
func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
