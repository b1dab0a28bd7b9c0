// Package receiver consumes video streamed by a remote participant over the
// room's byte stream facility. Each byte stream carries one segment: a run
// of fixed-size raw frames whose dimensions travel in the stream attributes.
// Closing the stream marks the segment boundary.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"vidlink/internal/metrics"
	"vidlink/internal/room"
	"vidlink/pkg/models"
)

var (
	// ErrSegmentEnd is returned by Next exactly once at each segment
	// boundary, before frames of the following segment.
	ErrSegmentEnd = errors.New("video segment end")

	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("receiver closed")
)

// Options configures a Receiver.
type Options struct {
	// SenderIdentity pins the receiver to one participant. When empty, the
	// first agent participant in the room is used.
	SenderIdentity string

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics
}

// Receiver reassembles video frames from a remote sender's byte streams.
// Next is a lazy, non-restartable sequence and must be driven by a single
// goroutine; the other methods are safe to call concurrently.
type Receiver struct {
	room room.Room
	opts Options
	log  *logrus.Entry

	stats models.LinkStatsCollector

	mu             sync.Mutex
	sender         string                  // resolved sender identity, set by Start
	pending        []room.ByteStreamReader // streams queued behind the current one
	current        *segmentReader
	clearListeners map[int]func()
	nextListener   int

	changed chan struct{} // signaled when pending grows
	done    chan struct{} // closed by Close
	closed  bool
}

// segmentReader tracks the stream currently being decoded. Frames are
// decoded by a dedicated goroutine so Next can stay responsive to ctx and
// Close while a read is in flight.
type segmentReader struct {
	r         room.ByteStreamReader
	format    models.StreamFormat
	frames    int  // frames decoded so far, discarded ones included
	delivered int  // frames returned to the caller
	cleared   bool // set by the clear-buffer RPC

	reads chan readResult
}

// readResult is one decoded frame slab or the error that ended the stream.
type readResult struct {
	data []byte
	err  error
}

// readLoop decodes frame-size slabs until the stream ends. It is unblocked
// by done when the receiver closes mid-stream; the transport tears the
// underlying reader down when the room disconnects.
func (s *segmentReader) readLoop(done <-chan struct{}) {
	for {
		buf := make([]byte, s.format.FrameSize())
		_, err := io.ReadFull(s.r, buf)
		if err != nil {
			select {
			case s.reads <- readResult{err: err}:
			case <-done:
			}
			return
		}
		select {
		case s.reads <- readResult{data: buf}:
		case <-done:
			return
		}
	}
}

// New creates a receiver on the given room. Call Start before iterating.
func New(rm room.Room, opts Options) *Receiver {
	return &Receiver{
		room: rm,
		opts: opts,
		log: logrus.WithFields(logrus.Fields{
			"component": "video-receiver",
			"identity":  rm.LocalIdentity(),
		}),
		clearListeners: make(map[int]func()),
		changed:        make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
}

// Start resolves the sender participant and registers the stream and RPC
// handlers. It blocks until a suitable participant is present or ctx is
// done.
func (rx *Receiver) Start(ctx context.Context) error {
	sender, err := rx.waitForParticipant(ctx)
	if err != nil {
		return fmt.Errorf("no suitable sender participant: %w", err)
	}

	rx.mu.Lock()
	rx.sender = sender.Identity
	rx.mu.Unlock()
	rx.log = rx.log.WithField("sender", sender.Identity)

	if err := rx.room.RegisterRPCMethod(models.RPCClearBuffer, rx.handleClearBuffer); err != nil {
		return fmt.Errorf("failed to register clear buffer handler: %w", err)
	}

	if err := rx.room.RegisterByteStreamHandler(models.TopicVideoStream, rx.handleStream); err != nil {
		return fmt.Errorf("failed to register video stream handler: %w", err)
	}

	rx.log.Info("video receiver started")
	return nil
}

// waitForParticipant returns the configured sender, or the first agent
// participant when no identity was configured.
func (rx *Receiver) waitForParticipant(ctx context.Context) (room.Participant, error) {
	matches := func(p room.Participant) bool {
		if rx.opts.SenderIdentity != "" {
			return p.Identity == rx.opts.SenderIdentity
		}
		return p.Kind == room.ParticipantAgent
	}

	found := make(chan room.Participant, 1)
	cancel := rx.room.OnParticipantConnected(func(p room.Participant) {
		if matches(p) {
			select {
			case found <- p:
			default:
			}
		}
	})
	defer cancel()

	// Check after subscribing so a join between scan and subscribe is not
	// missed.
	for _, p := range rx.room.RemoteParticipants() {
		if matches(p) {
			return p, nil
		}
	}

	select {
	case p := <-found:
		return p, nil
	case <-ctx.Done():
		return room.Participant{}, ctx.Err()
	case <-rx.done:
		return room.Participant{}, ErrClosed
	}
}

func (rx *Receiver) handleClearBuffer(inv room.RPCInvocation) (string, error) {
	rx.mu.Lock()
	sender := rx.sender
	rx.mu.Unlock()

	if inv.CallerIdentity != sender {
		rx.log.WithFields(logrus.Fields{
			"caller_identity":   inv.CallerIdentity,
			"expected_identity": sender,
		}).Warn("clear buffer request from unexpected participant")
		rx.opts.Metrics.RecordRPC(models.RPCClearBuffer, errors.New("rejected"))
		return "reject", nil
	}

	rx.mu.Lock()
	if rx.current != nil {
		rx.current.cleared = true
	}
	listeners := make([]func(), 0, len(rx.clearListeners))
	for _, fn := range rx.clearListeners {
		listeners = append(listeners, fn)
	}
	rx.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}

	rx.opts.Metrics.RecordRPC(models.RPCClearBuffer, nil)
	return "ok", nil
}

func (rx *Receiver) handleStream(r room.ByteStreamReader, identity string) {
	rx.mu.Lock()
	sender := rx.sender
	rx.mu.Unlock()

	if identity != sender {
		return
	}

	rx.mu.Lock()
	rx.pending = append(rx.pending, r)
	rx.mu.Unlock()

	select {
	case rx.changed <- struct{}{}:
	default:
	}
}

// AddClearBufferListener registers a callback fired when the sender requests
// a buffer clear. The returned function removes it.
func (rx *Receiver) AddClearBufferListener(fn func()) (remove func()) {
	rx.mu.Lock()
	id := rx.nextListener
	rx.nextListener++
	rx.clearListeners[id] = fn
	rx.mu.Unlock()

	return func() {
		rx.mu.Lock()
		delete(rx.clearListeners, id)
		rx.mu.Unlock()
	}
}

// Next returns the next decoded frame. At each segment boundary it returns
// (nil, ErrSegmentEnd) once; the following call proceeds to the next queued
// segment. It blocks while no data is pending, honoring ctx and Close even
// mid-frame; a frame completed after a cancelled call is returned by the
// next one.
func (rx *Receiver) Next(ctx context.Context) (*models.VideoFrame, error) {
	for {
		select {
		case <-rx.done:
			return nil, ErrClosed
		default:
		}

		cur := rx.currentSegment()
		if cur == nil {
			next, ok := rx.dequeue()
			if !ok {
				select {
				case <-rx.changed:
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-rx.done:
					return nil, ErrClosed
				}
			}

			format, err := models.ParseStreamFormat(next.Info().Attributes)
			if err != nil {
				rx.log.WithError(err).WithField("stream", next.Info().Name).
					Warn("skipping stream with invalid attributes")
				continue
			}

			cur = &segmentReader{r: next, format: format, reads: make(chan readResult)}
			rx.setCurrent(cur)
			go cur.readLoop(rx.done)
			rx.opts.Metrics.SegmentOpened()
			rx.log.WithFields(logrus.Fields{
				"stream": next.Info().Name,
				"width":  format.Width,
				"height": format.Height,
				"type":   format.Type.String(),
			}).Debug("video segment opened")
		}

		var res readResult
		select {
		case res = <-cur.reads:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-rx.done:
			return nil, ErrClosed
		}

		switch {
		case res.err == nil:
			cur.frames++
			if rx.isCleared() {
				rx.stats.RecordDiscarded(1)
				rx.opts.Metrics.RecordFramesDiscarded(1)
				continue
			}
			cur.delivered++
			rx.stats.RecordReceived(len(res.data))
			rx.opts.Metrics.RecordFrameReceived(len(res.data))
			return &models.VideoFrame{
				Width:  cur.format.Width,
				Height: cur.format.Height,
				Type:   cur.format.Type,
				Data:   res.data,
			}, nil

		case errors.Is(res.err, io.EOF):
			rx.finishSegment(cur, false)
			return nil, ErrSegmentEnd

		case errors.Is(res.err, io.ErrUnexpectedEOF):
			rx.log.WithField("stream", cur.r.Info().Name).
				Warn("video segment ended mid-frame, dropping trailing bytes")
			rx.stats.RecordTruncated()
			rx.opts.Metrics.RecordTruncatedSegment()
			rx.finishSegment(cur, true)
			return nil, ErrSegmentEnd

		default:
			return nil, fmt.Errorf("failed to read video stream: %w", res.err)
		}
	}
}

func (rx *Receiver) currentSegment() *segmentReader {
	rx.mu.Lock()
	defer rx.mu.Unlock()
	return rx.current
}

func (rx *Receiver) setCurrent(s *segmentReader) {
	rx.mu.Lock()
	rx.current = s
	rx.mu.Unlock()
}

func (rx *Receiver) isCleared() bool {
	rx.mu.Lock()
	defer rx.mu.Unlock()
	return rx.current != nil && rx.current.cleared
}

func (rx *Receiver) dequeue() (room.ByteStreamReader, bool) {
	rx.mu.Lock()
	defer rx.mu.Unlock()
	if len(rx.pending) == 0 {
		return nil, false
	}
	next := rx.pending[0]
	rx.pending = rx.pending[1:]
	return next, true
}

func (rx *Receiver) finishSegment(cur *segmentReader, truncated bool) {
	rx.mu.Lock()
	rx.current = nil
	rx.mu.Unlock()

	rx.stats.RecordSegmentReceived()
	rx.opts.Metrics.RecordSegmentReceived(cur.delivered)
	rx.opts.Metrics.SegmentClosed()
	rx.log.WithFields(logrus.Fields{
		"stream":    cur.r.Info().Name,
		"frames":    cur.delivered,
		"discarded": cur.frames - cur.delivered,
		"truncated": truncated,
	}).Debug("video segment finished")
}

// NotifyPlaybackFinished reports playback completion back to the sender.
func (rx *Receiver) NotifyPlaybackFinished(ctx context.Context, position float64, interrupted bool) error {
	rx.mu.Lock()
	sender := rx.sender
	rx.mu.Unlock()
	if sender == "" {
		return errors.New("receiver not started")
	}

	event := models.PlaybackFinishedEvent{PlaybackPosition: position, Interrupted: interrupted}
	payload, err := event.Marshal()
	if err != nil {
		return err
	}

	rx.log.WithFields(logrus.Fields{
		"playback_position": position,
		"interrupted":       interrupted,
	}).Debug("notifying playback finished")

	_, err = rx.room.PerformRPC(ctx, sender, models.RPCPlaybackFinished, payload)
	rx.opts.Metrics.RecordRPC(models.RPCPlaybackFinished, err)
	if err != nil {
		return fmt.Errorf("failed to notify playback finished: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the receiver counters.
func (rx *Receiver) Stats() models.LinkStats {
	return rx.stats.Snapshot()
}

// Close stops the receiver and wakes any blocked Next call.
func (rx *Receiver) Close() error {
	rx.mu.Lock()
	if rx.closed {
		rx.mu.Unlock()
		return nil
	}
	rx.closed = true
	rx.mu.Unlock()

	close(rx.done)
	return nil
}
