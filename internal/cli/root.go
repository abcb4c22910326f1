// Package cli implements the peer command: a terminal participant that hosts
// or joins a room and drives the negotiation session end to end.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/cowatch/internal/adapters/rtc"
	"github.com/dkeye/cowatch/internal/domain"
	"github.com/dkeye/cowatch/internal/media"
	"github.com/dkeye/cowatch/internal/peer"
	"github.com/dkeye/cowatch/internal/signaling"
)

var (
	serverURL   string
	iceServers  []string
	systemAudio bool
	shareAfter  time.Duration
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "peer",
	Short: "Two-party A/V session peer for the cowatch relay",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "ws://localhost:8080/api/ws/signal", "relay WebSocket URL")
	rootCmd.PersistentFlags().StringSliceVar(&iceServers, "ice", []string{"stun:stun.l.google.com:19302"}, "ICE server URLs")
	rootCmd.PersistentFlags().BoolVar(&systemAudio, "system-audio", true, "include system audio when screen sharing")
	rootCmd.PersistentFlags().DurationVar(&shareAfter, "share-after", 0, "start a screen share this long after connecting (0 disables)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// runSession wires client, transport and devices into one session and blocks
// until it ends or the process is interrupted.
func runSession(roomID domain.RoomID, role peer.Role) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := signaling.NewClient(serverURL)
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Close()

	conn, err := rtc.NewConnection(rtc.Config{ICEServers: iceServers})
	if err != nil {
		return err
	}

	devices := &media.SynthDevices{SystemAudio: systemAudio}
	ended := make(chan struct{})

	var sess *peer.Session
	sess = peer.NewSession(roomID, role, conn, devices, client,
		peer.WithNotify(func(st peer.State, err error) {
			switch st {
			case peer.StateConnected:
				if shareAfter > 0 {
					time.AfterFunc(shareAfter, func() {
						if sh := sess.Share(); sh != nil {
							if err := sh.StartScreenShare(ctx); err != nil {
								zlog.Error().Err(err).Msg("screen share failed")
							}
						}
					})
				}
			case peer.StateFailed:
				close(ended)
			}
		}),
	)
	defer sess.Close()

	if err := client.Send(signaling.NewJoinRoom(roomID)); err != nil {
		return err
	}

	go func() {
		for ev := range client.Events() {
			sess.Handle(ev)
		}
	}()

	zlog.Info().Str("room", string(roomID)).Str("role", role.String()).Msg("session running, Ctrl-C to leave")
	select {
	case <-ctx.Done():
		_ = client.Send(signaling.NewLeaveRoom(roomID))
	case <-ended:
	}
	if err := sess.Err(); err != nil {
		return err
	}
	return nil
}
