package room

import (
	"context"
	"fmt"
	"sync"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/sirupsen/logrus"
)

// LiveKitConfig holds what is needed to join a LiveKit room. Either Token or
// the APIKey/APISecret pair must be set.
type LiveKitConfig struct {
	URL       string
	Token     string // Pre-minted join token
	APIKey    string
	APISecret string
	RoomName  string
	Identity  string
}

// liveKitRoom adapts a lksdk.Room to the Room interface.
type liveKitRoom struct {
	room *lksdk.Room
	log  *logrus.Entry

	joinListeners map[int]func(Participant)
	nextListener  int
	mu            sync.RWMutex
}

// ConnectLiveKit joins a LiveKit room and returns it as a Room.
func ConnectLiveKit(ctx context.Context, cfg LiveKitConfig) (Room, error) {
	r := &liveKitRoom{
		log:           logrus.WithField("component", "livekit-room"),
		joinListeners: make(map[int]func(Participant)),
	}

	callback := &lksdk.RoomCallback{
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			r.notifyJoin(toParticipant(rp))
		},
		OnDisconnected: func() {
			r.log.Info("disconnected from room")
		},
	}

	var (
		room *lksdk.Room
		err  error
	)
	if cfg.Token != "" {
		room, err = lksdk.ConnectToRoomWithToken(cfg.URL, cfg.Token, callback)
	} else {
		room, err = lksdk.ConnectToRoom(cfg.URL, lksdk.ConnectInfo{
			APIKey:              cfg.APIKey,
			APISecret:           cfg.APISecret,
			RoomName:            cfg.RoomName,
			ParticipantIdentity: cfg.Identity,
		}, callback)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to room: %w", err)
	}

	r.room = room
	r.log = r.log.WithField("room", room.Name())
	r.log.WithField("identity", room.LocalParticipant.Identity()).Info("connected to room")
	return r, nil
}

func toParticipant(rp *lksdk.RemoteParticipant) Participant {
	p := Participant{Identity: rp.Identity()}
	if rp.Kind() == lksdk.ParticipantAgent {
		p.Kind = ParticipantAgent
	}
	return p
}

func (r *liveKitRoom) LocalIdentity() string {
	return r.room.LocalParticipant.Identity()
}

func (r *liveKitRoom) RemoteParticipants() []Participant {
	remotes := r.room.GetRemoteParticipants()
	participants := make([]Participant, 0, len(remotes))
	for _, rp := range remotes {
		participants = append(participants, toParticipant(rp))
	}
	return participants
}

func (r *liveKitRoom) OnParticipantConnected(fn func(Participant)) func() {
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

func (r *liveKitRoom) notifyJoin(p Participant) {
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

func (r *liveKitRoom) RegisterByteStreamHandler(topic string, h ByteStreamHandler) error {
	return r.room.RegisterByteStreamHandler(topic, func(reader *lksdk.ByteStreamReader, participantIdentity string) {
		h(&liveKitReader{reader: reader}, participantIdentity)
	})
}

func (r *liveKitRoom) OpenByteStream(ctx context.Context, opts StreamOptions) (ByteStreamWriter, error) {
	writer := r.room.LocalParticipant.StreamBytes(lksdk.StreamBytesOptions{
		FileName:              &opts.Name,
		Topic:                 opts.Topic,
		DestinationIdentities: opts.DestinationIdentities,
		Attributes:            opts.Attributes,
	})
	return &liveKitWriter{writer: writer}, nil
}

func (r *liveKitRoom) RegisterRPCMethod(method string, h RPCHandler) error {
	return r.room.RegisterRpcMethod(method, func(data lksdk.RpcInvocationData) (string, error) {
		return h(RPCInvocation{
			CallerIdentity: data.CallerIdentity,
			Payload:        data.Payload,
		})
	})
}

func (r *liveKitRoom) PerformRPC(ctx context.Context, destinationIdentity, method, payload string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := r.room.LocalParticipant.PerformRpc(lksdk.PerformRpcParams{
		DestinationIdentity: destinationIdentity,
		Method:              method,
		Payload:             payload,
	})
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", nil
	}
	return *res, nil
}

func (r *liveKitRoom) Close() error {
	r.room.Disconnect()
	return nil
}

// liveKitReader adapts lksdk's stream reader.
type liveKitReader struct {
	reader *lksdk.ByteStreamReader
}

func (r *liveKitReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r *liveKitReader) Info() StreamInfo {
	info := r.reader.Info
	si := StreamInfo{
		ID:         info.Id,
		Topic:      info.Topic,
		Attributes: info.Attributes,
	}
	if info.Name != nil {
		si.Name = *info.Name
	}
	return si
}

// liveKitWriter adapts lksdk's stream writer.
type liveKitWriter struct {
	writer *lksdk.ByteStreamWriter
}

func (w *liveKitWriter) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	onDone := func() { close(done) }
	w.writer.Write(p, &onDone)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *liveKitWriter) Close() error {
	w.writer.Close()
	return nil
}
