// Command receiver connects to a room, subscribes to a sender's video
// stream and consumes frames, reporting playback completion at each segment
// boundary. Completed segments can be archived to local disk, GCS or S3.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"vidlink/config"
	"vidlink/httpServer"
	"vidlink/internal/archive"
	"vidlink/internal/auth"
	"vidlink/internal/metrics"
	"vidlink/internal/receiver"
	"vidlink/internal/room"
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
	senderIdentity := flag.String("sender", cfg.SenderIdentity, "sender identity, empty subscribes to the first agent")
	fps := flag.Float64("fps", cfg.FPS, "assumed frame rate for playback positions")
	httpAddr := flag.String("http", cfg.HTTPAddr, "status API address, empty disables")
	archiveType := flag.String("archive", cfg.ArchiveType, "segment archive backend: local, gcs, s3 or empty")
	logLevel := flag.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.Parse()

	setupLogging(*logLevel)
	log := logrus.WithField("component", "receiver-main")

	if *url == "" {
		log.Fatal("-url is required")
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

	rx := receiver.New(rm, receiver.Options{
		SenderIdentity: *senderIdentity,
		Metrics:        m,
	})
	defer rx.Close()

	if err := rx.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start receiver")
	}

	rx.AddClearBufferListener(func() {
		log.Info("sender requested buffer clear")
	})

	var recorder *archive.Recorder
	if *archiveType != "" {
		storage, err := newStorage(ctx, cfg, *archiveType)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize segment archive")
		}
		recorder = archive.NewRecorder(storage, rm.LocalIdentity(), cfg.MaxSegments)
		log.WithField("backend", *archiveType).Info("segment archive enabled")
	}

	if *httpAddr != "" {
		authManager := auth.New(*apiKey, *apiSecret, cfg.DefaultTokenExpiration, cfg.MaxTokenExpiration)
		srv := httpServer.New(rm.LocalIdentity(), rx, authManager)
		go func() {
			if err := srv.Run(*httpAddr); err != nil {
				log.WithError(err).Error("status server failed")
			}
		}()
		log.WithField("addr", *httpAddr).Info("status API listening")
	}

	log.Info("receiving video")
	if err := consume(ctx, log, rx, recorder, *fps); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, receiver.ErrClosed) {
		log.WithError(err).Fatal("receive loop failed")
	}

	stats := rx.Stats()
	log.WithFields(logrus.Fields{
		"frames":    stats.FramesReceived,
		"segments":  stats.SegmentsReceived,
		"discarded": stats.FramesDiscarded,
	}).Info("receiver finished")
}

// consume drives the receiver until ctx is done, logging segment summaries
// and acknowledging playback after each one.
func consume(ctx context.Context, log *logrus.Entry, rx *receiver.Receiver, recorder *archive.Recorder, fps float64) error {
	segmentFrames := 0
	totalFrames := 0
	segment := 0

	for {
		frame, err := rx.Next(ctx)
		switch {
		case err == nil:
			segmentFrames++
			totalFrames++
			if recorder != nil {
				recorder.Record(frame)
			}

		case errors.Is(err, receiver.ErrSegmentEnd):
			log.WithFields(logrus.Fields{
				"segment": segment,
				"frames":  segmentFrames,
			}).Info("video segment finished")

			if recorder != nil {
				if aerr := recorder.EndSegment(); aerr != nil {
					log.WithError(aerr).Error("failed to archive segment")
				}
			}

			position := float64(totalFrames) / fps
			if nerr := rx.NotifyPlaybackFinished(ctx, position, false); nerr != nil {
				log.WithError(nerr).Warn("failed to notify playback finished")
			}

			segment++
			segmentFrames = 0

		default:
			return err
		}
	}
}

func newStorage(ctx context.Context, cfg *config.Config, archiveType string) (archive.Storage, error) {
	switch archiveType {
	case "local":
		return archive.NewLocalStorage(cfg.ArchiveDir)
	case "gcs":
		if cfg.ArchiveBucket == "" {
			return nil, errors.New("ARCHIVE_BUCKET must be set for gcs archive")
		}
		return archive.NewGCSStorage(ctx, cfg.ArchiveBucket, cfg.ArchiveBaseDir)
	case "s3":
		if cfg.ArchiveBucket == "" || cfg.ArchiveRegion == "" {
			return nil, errors.New("ARCHIVE_BUCKET and ARCHIVE_REGION must be set for s3 archive")
		}
		return archive.NewS3Storage(cfg.ArchiveRegion, cfg.ArchiveBucket, cfg.ArchiveBaseDir)
	default:
		return nil, fmt.Errorf("unknown archive type %q", archiveType)
	}
}

func setupLogging(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stderr)
}
