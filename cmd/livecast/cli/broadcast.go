package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livecast/internal/capture"
	"livecast/internal/live"
	"livecast/internal/platform/config"
	"livecast/internal/relay"

	"github.com/spf13/cobra"
)

var (
	bcTitle       string
	bcDescription string
	bcOwner       string
	bcOwnerName   string
	bcInput       string
	bcFormat      string
	bcDevice      string
	bcInterval    time.Duration
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Capture local media and publish it as a live chunk stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bcInterval <= 0 {
			bcInterval = config.GetEnvDuration("CHUNK_INTERVAL", live.DefaultChunkInterval)
		}

		var device live.CaptureDevice
		if bcInput != "" {
			device = &capture.FileDevice{Path: bcInput}
		} else {
			device = &capture.FFmpegDevice{Format: bcFormat, Input: bcDevice, Log: log}
		}

		client := relay.NewClient(relayURL, log)
		b := live.NewBroadcaster(device, client, client, bcInterval, log, nil)

		sess, err := b.Start(cmd.Context(), live.StartOptions{
			Title:       bcTitle,
			Description: bcDescription,
			OwnerID:     bcOwner,
			OwnerName:   bcOwnerName,
			Constraints: live.Constraints{Video: true, Audio: true},
		})
		if err != nil {
			return err
		}
		log.Info("broadcasting, press ctrl-c to end",
			slog.String("session_id", string(sess.ID)),
			slog.String("stream_key", sess.StreamKey))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.Stop(ctx); err != nil {
			if errors.Is(err, live.ErrPublishRecordingFailed) {
				// Session ended cleanly; there is just nothing to replay.
				log.Warn("stream ended without a recording", slog.String("error", err.Error()))
				return nil
			}
			return err
		}
		log.Info("stream ended")
		return nil
	},
}

func init() {
	broadcastCmd.Flags().StringVar(&bcTitle, "title", "Untitled stream", "stream title")
	broadcastCmd.Flags().StringVar(&bcDescription, "description", "", "stream description")
	broadcastCmd.Flags().StringVar(&bcOwner, "owner", "anonymous", "owner id")
	broadcastCmd.Flags().StringVar(&bcOwnerName, "owner-name", "Anonymous", "owner display name")
	broadcastCmd.Flags().StringVar(&bcInput, "input", "", "replay a media file instead of capturing")
	broadcastCmd.Flags().StringVar(&bcFormat, "capture-format", "v4l2", "ffmpeg capture format (v4l2, avfoundation, ...)")
	broadcastCmd.Flags().StringVar(&bcDevice, "capture-device", "/dev/video0", "ffmpeg capture input device")
	broadcastCmd.Flags().DurationVar(&bcInterval, "interval", 0, "chunk interval (default $CHUNK_INTERVAL or 3s)")
}
