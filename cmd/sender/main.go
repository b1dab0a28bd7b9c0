// Command sender connects to a room and streams video segments to a
// destination participant over the data stream video protocol. Frames come
// from a video file when -input is given, otherwise from the built-in
// animation generator.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"vidlink/config"
	"vidlink/httpServer"
	"vidlink/internal/auth"
	"vidlink/internal/metrics"
	"vidlink/internal/room"
	"vidlink/internal/sender"
	"vidlink/internal/source"
	"vidlink/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	url := flag.String("url", cfg.URL, "room server URL")
	token := flag.String("token", cfg.Token, "pre-minted join token")
	apiKey := flag.String("api-key", cfg.APIKey, "API key (alternative to -token)")
	apiSecret := flag.String("api-secret", cfg.APISecret, "API secret")
	roomName := flag.String("room", cfg.RoomName, "room name")
	identity := flag.String("identity", cfg.Identity, "local participant identity")
	destination := flag.String("destination", cfg.DestinationIdentity, "destination participant identity")
	width := flag.Int("width", cfg.Width, "frame width")
	height := flag.Int("height", cfg.Height, "frame height")
	fps := flag.Float64("fps", cfg.FPS, "frames per second")
	segments := flag.Int("segments", 2, "number of segments to send")
	frames := flag.Int("frames", 150, "frames per segment")
	input := flag.String("input", "", "video file to stream instead of the animation")
	httpAddr := flag.String("http", cfg.HTTPAddr, "status API address, empty disables")
	logLevel := flag.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.Parse()

	setupLogging(*logLevel)
	log := logrus.WithField("component", "sender-main")

	if *url == "" || *destination == "" {
		log.Fatal("-url and -destination are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	rm, err := room.ConnectLiveKit(ctx, room.LiveKitConfig{
		URL:       *url,
		Token:     *token,
		APIKey:    *apiKey,
		APISecret: *apiSecret,
		RoomName:  *roomName,
		Identity:  *identity,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to room")
	}
	defer rm.Close()

	if err := waitForDestination(ctx, rm, *destination); err != nil {
		log.WithError(err).Fatal("destination participant never joined")
	}
	log.WithField("destination", *destination).Info("destination participant present")

	snd, err := sender.New(rm, sender.Options{
		DestinationIdentity: *destination,
		Metrics:             m,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to create sender")
	}
	defer snd.Close()

	snd.AddPlaybackFinishedListener(func(event models.PlaybackFinishedEvent) {
		log.WithFields(logrus.Fields{
			"playback_position": event.PlaybackPosition,
			"interrupted":       event.Interrupted,
		}).Info("playback finished report received")
	})

	if *httpAddr != "" {
		authManager := auth.New(*apiKey, *apiSecret, cfg.DefaultTokenExpiration, cfg.MaxTokenExpiration)
		srv := httpServer.New(rm.LocalIdentity(), snd, authManager)
		go func() {
			if err := srv.Run(*httpAddr); err != nil {
				log.WithError(err).Error("status server failed")
			}
		}()
		log.WithField("addr", *httpAddr).Info("status API listening")
	}

	if *input != "" {
		err = streamFile(ctx, log, snd, *input, *width, *height, int(*fps))
	} else {
		err = streamAnimation(ctx, log, snd, *width, *height, *fps, *segments, *frames)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("streaming failed")
	}

	// Give the receiver a moment to report playback completion.
	select {
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
	}

	stats := snd.Stats()
	log.WithFields(logrus.Fields{
		"frames":   stats.FramesSent,
		"segments": stats.SegmentsSent,
		"bytes":    stats.BytesSent,
	}).Info("sender finished")
}

// waitForDestination blocks until the destination participant is in the
// room or ctx is done.
func waitForDestination(ctx context.Context, rm room.Room, destination string) error {
	found := make(chan struct{}, 1)
	cancel := rm.OnParticipantConnected(func(p room.Participant) {
		if p.Identity == destination {
			select {
			case found <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()

	for _, p := range rm.RemoteParticipants() {
		if p.Identity == destination {
			return nil
		}
	}

	select {
	case <-found:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func streamAnimation(ctx context.Context, log *logrus.Entry, snd *sender.Sender, width, height int, fps float64, segments, frames int) error {
	anim := source.NewAnimation(width, height, fps)

	for seg := 0; seg < segments; seg++ {
		log.WithField("segment", seg).Info("sending video segment")
		count := 0

		for frame := range anim.Frames(ctx, frames) {
			if err := snd.SendFrame(ctx, frame); err != nil {
				return err
			}
			count++
			if count%30 == 0 {
				log.WithField("frames", count).Debug("segment progress")
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		snd.Flush()
		log.WithFields(logrus.Fields{
			"segment": seg,
			"frames":  count,
		}).Info("video segment sent")

		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func streamFile(ctx context.Context, log *logrus.Entry, snd *sender.Sender, path string, width, height, fps int) error {
	src, err := source.OpenFile(path, width, height, fps, models.BufferRGBA)
	if err != nil {
		return err
	}
	defer src.Close()

	log.WithField("input", path).Info("streaming video file")
	count := 0
	for {
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := snd.SendFrame(ctx, frame); err != nil {
			return err
		}
		count++
	}

	snd.Flush()
	log.WithField("frames", count).Info("video file sent")
	return nil
}

func setupLogging(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stderr)
}
