package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"livecast/internal/live"
	"livecast/internal/relay"

	"github.com/spf13/cobra"
)

var watchOut string

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Follow a live session and reassemble its playback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := live.SessionID(args[0])

		var out io.Writer = os.Stdout
		if watchOut != "-" {
			f, err := os.Create(watchOut)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		client := relay.NewClient(relayURL, log)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		// Register as a viewer; losing the count is not worth failing playback.
		if err := client.UpdateSession(ctx, sessionID, live.SessionPatch{AddViewers: 1}); err != nil {
			if errors.Is(err, live.ErrSessionNotFound) {
				return err
			}
			log.Warn("viewer count not updated", slog.String("error", err.Error()))
		}

		seq := live.NewSequencer(client, &live.WriterPlayer{W: out}, live.SequencerOptions{}, log, nil)
		w := live.NewWatcher(client, log, nil)
		if err := w.Subscribe(sessionID, seq.OnReference, seq.OnEnded); err != nil {
			return err
		}
		defer w.Unsubscribe()

		err := seq.Run(ctx)
		switch {
		case errors.Is(err, live.ErrNoRecordingAvailable):
			log.Warn("session ended with no recording available")
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return err
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchOut, "out", "-", "write playback to this file (- for stdout)")
}
