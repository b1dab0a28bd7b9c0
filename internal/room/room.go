package room

import (
	"context"
	"io"
)

// ParticipantKind mirrors the room service's participant classification.
type ParticipantKind int

const (
	ParticipantStandard ParticipantKind = iota
	ParticipantAgent
)

// Participant is an identified endpoint in a room.
type Participant struct {
	Identity string
	Kind     ParticipantKind
}

// StreamInfo describes an incoming byte stream.
type StreamInfo struct {
	ID         string            // Stream id assigned by the opener
	Topic      string            // Application topic
	Name       string            // Human-readable stream name
	Attributes map[string]string // Application attributes set at open time
}

// ByteStreamReader reads one incoming byte stream. Read returns io.EOF when
// the remote side closes the stream.
type ByteStreamReader interface {
	io.Reader
	Info() StreamInfo
}

// ByteStreamWriter writes one outgoing byte stream. Close marks the end of
// the stream for all destinations.
type ByteStreamWriter interface {
	Write(ctx context.Context, p []byte) error
	Close() error
}

// StreamOptions configures an outgoing byte stream.
type StreamOptions struct {
	Name                  string
	Topic                 string
	DestinationIdentities []string
	Attributes            map[string]string
}

// ByteStreamHandler is invoked once per incoming stream on a registered
// topic. The handler owns the reader.
type ByteStreamHandler func(r ByteStreamReader, participantIdentity string)

// RPCInvocation carries an inbound RPC call.
type RPCInvocation struct {
	CallerIdentity string
	Payload        string
}

// RPCHandler answers an RPC method. A returned error propagates to the
// caller.
type RPCHandler func(inv RPCInvocation) (string, error)

// Room is the transport surface the video link runs on. The production
// implementation is backed by a LiveKit room; tests and local loopback runs
// use the in-process Hub.
type Room interface {
	// LocalIdentity returns the identity this endpoint joined with.
	LocalIdentity() string

	// RemoteParticipants lists the currently connected remote participants.
	RemoteParticipants() []Participant

	// OnParticipantConnected registers a callback for future joins. The
	// returned function removes the callback.
	OnParticipantConnected(fn func(Participant)) (cancel func())

	// RegisterByteStreamHandler routes incoming streams on topic to h.
	RegisterByteStreamHandler(topic string, h ByteStreamHandler) error

	// OpenByteStream opens an outgoing stream to the given destinations.
	OpenByteStream(ctx context.Context, opts StreamOptions) (ByteStreamWriter, error)

	// RegisterRPCMethod routes inbound calls of method to h.
	RegisterRPCMethod(method string, h RPCHandler) error

	// PerformRPC calls method on the destination participant and returns
	// its response.
	PerformRPC(ctx context.Context, destinationIdentity, method, payload string) (string, error)

	// Close leaves the room.
	Close() error
}
