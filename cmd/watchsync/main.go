// Command watchsync joins a watch-together room from a terminal. With no
// room code configured it creates a room and acts as host.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"watchsync/internal/chat"
	"watchsync/internal/client"
	"watchsync/internal/config"
	"watchsync/internal/media"
	"watchsync/internal/presence"
	"watchsync/internal/reconcile"
	"watchsync/internal/session"
	"watchsync/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("watchsync failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	base, err := transport.NewHTTPClient(cfg.Client.ServerURL, cfg.Sync.RequestTimeout)
	if err != nil {
		return err
	}

	var sess session.Session
	if cfg.Client.RoomCode == "" {
		sess, err = client.CreateRoom(ctx, base, cfg.Client.DisplayName)
	} else {
		sess, err = client.JoinRoom(ctx, base, cfg.Client.RoomCode, cfg.Client.DisplayName)
	}
	if err != nil {
		return fmt.Errorf("enter room: %w", err)
	}
	logger := log.With().Str("module", "cli").Str("room", sess.RoomCode()).Logger()
	logger.Info().Str("role", string(sess.Role())).Str("self", sess.SelfID()).Msg("joined room")

	player := newHeadlessPlayer()
	push := transport.NewPushClient(client.PushURL(cfg.Client.ServerURL, sess), transport.PushOptions{
		ReconnectMin: cfg.Push.ReconnectMin,
		ReconnectMax: cfg.Push.ReconnectMax,
		PingPeriod:   cfg.Push.PingPeriod,
		SendBuffer:   cfg.Push.SendBuffer,
	})
	c := client.New(sess, push, base.WithToken(sess.Token()), player, client.Options{
		Sync:         cfg.Sync,
		Prober:       media.NewProber(&http.Client{Timeout: cfg.Sync.RequestTimeout}),
		MediaBaseURL: cfg.Client.ServerURL,
		Hooks:        hooks(logger, player),
	})

	c.Start(ctx)
	go readCommands(ctx, c, player, logger)
	<-ctx.Done()
	c.Close()
	return nil
}

func hooks(logger zerolog.Logger, player *headlessPlayer) client.Hooks {
	return client.Hooks{
		OnVideoChanged: player.Load,
		OnMessages: func(msgs []chat.Message) {
			for _, m := range msgs {
				if m.Kind == chat.System {
					fmt.Printf("* %s\n", m.Body)
					continue
				}
				fmt.Printf("<%s> %s\n", m.SenderName, m.Body)
			}
		},
		OnNotify: func(m chat.Message) {
			logger.Info().Str("from", m.SenderName).Msg("new message while chat is hidden")
		},
		OnMemberCount: func(n int) {
			logger.Info().Int("count", n).Msg("member count changed")
		},
		OnPresence: func(snap presence.Snapshot) {
			logger.Debug().Int("members", len(snap.Members)).Msg("member list refreshed")
		},
		OnReconcile: func(res reconcile.Result) {
			if len(res.Actions) > 0 {
				logger.Debug().Interface("actions", res.Actions).Float64("drift", res.Drift).Msg("corrected playback")
			}
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		},
	}
}

func readCommands(ctx context.Context, c controller, pos positioner, logger zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out, err := execute(ctx, c, pos, scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Println(out)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn().Err(err).Msg("stdin closed")
	}
}
