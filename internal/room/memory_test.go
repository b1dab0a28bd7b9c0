package room

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"
)

func TestHubByteStreamRoundTrip(t *testing.T) {
	hub := NewHub()
	alice, err := hub.Join("alice", ParticipantStandard)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	bob, err := hub.Join("bob", ParticipantStandard)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	type received struct {
		info StreamInfo
		from string
		data []byte
	}
	got := make(chan received, 1)

	err = bob.RegisterByteStreamHandler("topic", func(r ByteStreamReader, identity string) {
		data, _ := io.ReadAll(r)
		got <- received{info: r.Info(), from: identity, data: data}
	})
	if err != nil {
		t.Fatalf("RegisterByteStreamHandler failed: %v", err)
	}

	w, err := alice.OpenByteStream(context.Background(), StreamOptions{
		Name:                  "stream-1",
		Topic:                 "topic",
		DestinationIdentities: []string{"bob"},
		Attributes:            map[string]string{"width": "640"},
	})
	if err != nil {
		t.Fatalf("OpenByteStream failed: %v", err)
	}

	go func() {
		w.Write(context.Background(), []byte("hello "))
		w.Write(context.Background(), []byte("world"))
		w.Close()
	}()

	select {
	case r := <-got:
		if string(r.data) != "hello world" {
			t.Errorf("data = %q", r.data)
		}
		if r.from != "alice" {
			t.Errorf("from = %q, want alice", r.from)
		}
		if r.info.Attributes["width"] != "640" {
			t.Errorf("attributes = %v", r.info.Attributes)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for stream")
	}
}

func TestHubRPC(t *testing.T) {
	hub := NewHub()
	alice, _ := hub.Join("alice", ParticipantStandard)
	bob, _ := hub.Join("bob", ParticipantStandard)

	err := bob.RegisterRPCMethod("echo", func(inv RPCInvocation) (string, error) {
		return inv.CallerIdentity + ":" + inv.Payload, nil
	})
	if err != nil {
		t.Fatalf("RegisterRPCMethod failed: %v", err)
	}

	resp, err := alice.PerformRPC(context.Background(), "bob", "echo", "ping")
	if err != nil {
		t.Fatalf("PerformRPC failed: %v", err)
	}
	if resp != "alice:ping" {
		t.Errorf("resp = %q", resp)
	}

	if _, err := alice.PerformRPC(context.Background(), "bob", "missing", ""); err == nil {
		t.Error("unregistered method accepted")
	}
	if _, err := alice.PerformRPC(context.Background(), "nobody", "echo", ""); err == nil {
		t.Error("unknown participant accepted")
	}
}

func TestHubParticipantEvents(t *testing.T) {
	hub := NewHub()
	alice, _ := hub.Join("alice", ParticipantStandard)

	joined := make(chan Participant, 1)
	cancel := alice.OnParticipantConnected(func(p Participant) {
		joined <- p
	})
	defer cancel()

	if _, err := hub.Join("agent", ParticipantAgent); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	select {
	case p := <-joined:
		if p.Identity != "agent" || p.Kind != ParticipantAgent {
			t.Errorf("got %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for join event")
	}

	remotes := alice.RemoteParticipants()
	if len(remotes) != 1 || remotes[0].Identity != "agent" {
		t.Errorf("remotes = %+v", remotes)
	}
}

func TestHubDuplicateIdentity(t *testing.T) {
	hub := NewHub()
	if _, err := hub.Join("alice", ParticipantStandard); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, err := hub.Join("alice", ParticipantStandard); err == nil {
		t.Error("duplicate identity accepted")
	}
}

func TestHubStreamDeliveryOrder(t *testing.T) {
	hub := NewHub()
	alice, _ := hub.Join("alice", ParticipantStandard)
	bob, _ := hub.Join("bob", ParticipantStandard)

	const streams = 200
	names := make(chan string, streams)
	err := bob.RegisterByteStreamHandler("topic", func(r ByteStreamReader, identity string) {
		names <- r.Info().Name
	})
	if err != nil {
		t.Fatalf("RegisterByteStreamHandler failed: %v", err)
	}

	for i := 0; i < streams; i++ {
		w, err := alice.OpenByteStream(context.Background(), StreamOptions{
			Name:                  fmt.Sprintf("stream-%04d", i),
			Topic:                 "topic",
			DestinationIdentities: []string{"bob"},
		})
		if err != nil {
			t.Fatalf("OpenByteStream %d failed: %v", i, err)
		}
		w.Close()
	}

	// Streams must reach the handler in the order they were opened.
	for i := 0; i < streams; i++ {
		select {
		case name := <-names:
			if want := fmt.Sprintf("stream-%04d", i); name != want {
				t.Fatalf("delivery %d = %q, want %q", i, name, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("stream %d never delivered", i)
		}
	}
}

func TestHubFanoutSurvivesBrokenPipe(t *testing.T) {
	hub := NewHub()
	alice, _ := hub.Join("alice", ParticipantStandard)
	bob, _ := hub.Join("bob", ParticipantStandard)
	carol, _ := hub.Join("carol", ParticipantStandard)

	bobGone := make(chan struct{})
	err := bob.RegisterByteStreamHandler("topic", func(r ByteStreamReader, identity string) {
		// Tear down the read side so writes to this destination fail.
		r.(*memoryReader).pr.Close()
		close(bobGone)
	})
	if err != nil {
		t.Fatalf("RegisterByteStreamHandler failed: %v", err)
	}

	carolData := make(chan []byte, 1)
	err = carol.RegisterByteStreamHandler("topic", func(r ByteStreamReader, identity string) {
		data, _ := io.ReadAll(r)
		carolData <- data
	})
	if err != nil {
		t.Fatalf("RegisterByteStreamHandler failed: %v", err)
	}

	w, err := alice.OpenByteStream(context.Background(), StreamOptions{
		Name:                  "s",
		Topic:                 "topic",
		DestinationIdentities: []string{"bob", "carol"},
	})
	if err != nil {
		t.Fatalf("OpenByteStream failed: %v", err)
	}

	select {
	case <-bobGone:
	case <-time.After(time.Second):
		t.Fatal("bob's handler never ran")
	}

	// Bob's pipe is broken: the write reports it but still reaches carol.
	if err := w.Write(context.Background(), []byte("payload")); err == nil {
		t.Error("Write did not surface the broken pipe")
	}
	w.Close()

	select {
	case data := <-carolData:
		if string(data) != "payload" {
			t.Errorf("carol received %q, want payload", data)
		}
	case <-time.After(time.Second):
		t.Fatal("carol never received the stream")
	}
}

func TestHubStreamWithoutHandlerIsDiscarded(t *testing.T) {
	hub := NewHub()
	alice, _ := hub.Join("alice", ParticipantStandard)
	hub.Join("bob", ParticipantStandard)

	w, err := alice.OpenByteStream(context.Background(), StreamOptions{
		Name:                  "s",
		Topic:                 "unclaimed",
		DestinationIdentities: []string{"bob"},
	})
	if err != nil {
		t.Fatalf("OpenByteStream failed: %v", err)
	}
	// No handler registered: writes must not block or fail.
	if err := w.Write(context.Background(), []byte("data")); err != nil {
		t.Errorf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
