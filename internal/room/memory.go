package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Hub is an in-process room: participants join it and exchange byte streams
// and RPCs over pipes. It backs the protocol tests and local loopback runs;
// no network is involved.
type Hub struct {
	participants map[string]*memoryRoom // identity -> room handle
	mu           sync.RWMutex
}

// NewHub creates an empty in-process room.
func NewHub() *Hub {
	return &Hub{
		participants: make(map[string]*memoryRoom),
	}
}

// Join adds a participant to the hub and returns its Room handle.
func (h *Hub) Join(identity string, kind ParticipantKind) (Room, error) {
	h.mu.Lock()
	if _, exists := h.participants[identity]; exists {
		h.mu.Unlock()
		return nil, fmt.Errorf("identity %s already joined", identity)
	}

	r := &memoryRoom{
		hub:            h,
		identity:       identity,
		kind:           kind,
		streamHandlers: make(map[string]ByteStreamHandler),
		rpcHandlers:    make(map[string]RPCHandler),
		joinListeners:  make(map[int]func(Participant)),
		deliverCh:      make(chan struct{}, 1),
		quit:           make(chan struct{}),
	}
	h.participants[identity] = r
	go r.dispatchLoop()

	others := make([]*memoryRoom, 0, len(h.participants))
	for id, other := range h.participants {
		if id != identity {
			others = append(others, other)
		}
	}
	h.mu.Unlock()

	// Announce the join outside the hub lock.
	p := Participant{Identity: identity, Kind: kind}
	for _, other := range others {
		other.notifyJoin(p)
	}

	return r, nil
}

func (h *Hub) lookup(identity string) (*memoryRoom, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.participants[identity]
	return r, ok
}

func (h *Hub) leave(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.participants, identity)
}

// streamDelivery is one incoming stream queued for a participant.
type streamDelivery struct {
	handler ByteStreamHandler
	reader  ByteStreamReader
	from    string
}

// memoryRoom is one participant's handle on the hub.
type memoryRoom struct {
	hub      *Hub
	identity string
	kind     ParticipantKind

	streamHandlers map[string]ByteStreamHandler
	rpcHandlers    map[string]RPCHandler
	joinListeners  map[int]func(Participant)
	deliveries     []streamDelivery
	nextListener   int
	closed         bool
	mu             sync.RWMutex

	deliverCh chan struct{} // signaled when deliveries grows
	quit      chan struct{} // closed by Close
}

// dispatchLoop invokes stream handlers one at a time in arrival order, so
// segments opened back to back reach the handler in the order they were
// opened. A handler that blocks defers delivery of later streams.
func (r *memoryRoom) dispatchLoop() {
	for {
		r.mu.Lock()
		var next *streamDelivery
		if len(r.deliveries) > 0 {
			next = &r.deliveries[0]
			r.deliveries = r.deliveries[1:]
		}
		r.mu.Unlock()

		if next == nil {
			select {
			case <-r.deliverCh:
				continue
			case <-r.quit:
				return
			}
		}
		next.handler(next.reader, next.from)
	}
}

func (r *memoryRoom) LocalIdentity() string {
	return r.identity
}

func (r *memoryRoom) RemoteParticipants() []Participant {
	r.hub.mu.RLock()
	defer r.hub.mu.RUnlock()

	participants := make([]Participant, 0, len(r.hub.participants))
	for id, other := range r.hub.participants {
		if id == r.identity {
			continue
		}
		participants = append(participants, Participant{Identity: id, Kind: other.kind})
	}
	return participants
}

func (r *memoryRoom) OnParticipantConnected(fn func(Participant)) func() {
	r.mu.Lock()
	id := r.nextListener
	r.nextListener++
	r.joinListeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.joinListeners, id)
		r.mu.Unlock()
	}
}

func (r *memoryRoom) notifyJoin(p Participant) {
	r.mu.RLock()
	listeners := make([]func(Participant), 0, len(r.joinListeners))
	for _, fn := range r.joinListeners {
		listeners = append(listeners, fn)
	}
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(p)
	}
}

func (r *memoryRoom) RegisterByteStreamHandler(topic string, h ByteStreamHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.streamHandlers[topic]; exists {
		return fmt.Errorf("byte stream handler already registered for topic %s", topic)
	}
	r.streamHandlers[topic] = h
	return nil
}

func (r *memoryRoom) RegisterRPCMethod(method string, h RPCHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rpcHandlers[method]; exists {
		return fmt.Errorf("rpc handler already registered for method %s", method)
	}
	r.rpcHandlers[method] = h
	return nil
}

func (r *memoryRoom) OpenByteStream(ctx context.Context, opts StreamOptions) (ByteStreamWriter, error) {
	if len(opts.DestinationIdentities) == 0 {
		return nil, fmt.Errorf("no destination identities")
	}

	info := StreamInfo{
		ID:         opts.Name,
		Topic:      opts.Topic,
		Name:       opts.Name,
		Attributes: opts.Attributes,
	}

	writers := make([]*io.PipeWriter, 0, len(opts.DestinationIdentities))
	for _, dest := range opts.DestinationIdentities {
		target, ok := r.hub.lookup(dest)
		if !ok {
			return nil, fmt.Errorf("participant %s not found", dest)
		}

		target.mu.Lock()
		handler, ok := target.streamHandlers[opts.Topic]
		if !ok {
			// No handler registered: the stream is accepted and discarded,
			// mirroring how the real transport treats unclaimed topics.
			target.mu.Unlock()
			continue
		}

		pr, pw := io.Pipe()
		writers = append(writers, pw)
		target.deliveries = append(target.deliveries, streamDelivery{
			handler: handler,
			reader:  &memoryReader{pr: pr, info: info},
			from:    r.identity,
		})
		target.mu.Unlock()

		select {
		case target.deliverCh <- struct{}{}:
		default:
		}
	}

	return &memoryWriter{writers: writers}, nil
}

func (r *memoryRoom) PerformRPC(ctx context.Context, destinationIdentity, method, payload string) (string, error) {
	target, ok := r.hub.lookup(destinationIdentity)
	if !ok {
		return "", fmt.Errorf("participant %s not found", destinationIdentity)
	}

	target.mu.RLock()
	handler, ok := target.rpcHandlers[method]
	target.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("participant %s does not handle %s", destinationIdentity, method)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return handler(RPCInvocation{CallerIdentity: r.identity, Payload: payload})
}

func (r *memoryRoom) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.quit)
	r.hub.leave(r.identity)
	return nil
}

// memoryReader adapts a pipe to ByteStreamReader.
type memoryReader struct {
	pr   *io.PipeReader
	info StreamInfo
}

func (m *memoryReader) Read(p []byte) (int, error) {
	return m.pr.Read(p)
}

func (m *memoryReader) Info() StreamInfo {
	return m.info
}

// memoryWriter fans writes out to one pipe per destination. Pipes are safe
// for concurrent Write and Close, so no locking is needed here.
type memoryWriter struct {
	writers []*io.PipeWriter
}

// Write delivers p to every destination. A failed pipe does not stop
// delivery to the remaining ones; the errors are aggregated.
func (m *memoryWriter) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var errs []error
	for _, w := range m.writers {
		if _, err := w.Write(p); err != nil {
			errs = append(errs, fmt.Errorf("stream write failed: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (m *memoryWriter) Close() error {
	for _, w := range m.writers {
		w.Close()
	}
	return nil
}
