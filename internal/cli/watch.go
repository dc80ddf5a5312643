package cli

import (
	"context"
	"errors"
	"fmt"

	"kalpla-auth/internal/config"
	evtypes "kalpla-auth/internal/domain/events"
	"kalpla-auth/internal/events"
	"kalpla-auth/internal/websocket"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail a remote lifecycle event stream",
		Long: `Connects to a websocket lifecycle feed (EVENT_STREAM_URL by default) and
prints every signedIn, signedOut, tokenRefresh and tokenRefresh_failure
event until interrupted or the server closes the stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = config.Load().EventStreamURL
			}
			if url == "" {
				return errors.New("no stream url: pass --url or set EVENT_STREAM_URL")
			}
			return runWatch(cmd, url)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "websocket url of the event stream")
	return cmd
}

func runWatch(cmd *cobra.Command, url string) error {
	logger := newLogger()
	defer logger.Sync()

	out := cmd.OutOrStdout()
	hub := events.NewHub(logger.Named("events"))
	for _, kind := range evtypes.LifecycleEvents {
		hub.Subscribe(kind, func(ctx context.Context, ev evtypes.Event) {
			fmt.Fprintf(out, "%s %s %v\n", ev.Timestamp.Format("15:04:05"), ev.Type, ev.Data)
		})
	}

	stream := websocket.NewStream(url, hub, logger.Named("stream"))
	if err := stream.Run(cmd.Context()); err != nil {
		logger.Error("event stream stopped", zap.Error(err))
		return err
	}
	return nil
}
