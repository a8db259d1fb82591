package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"watchsync/internal/config"
	"watchsync/internal/hertzapi"
	"watchsync/internal/relay"
	"watchsync/internal/rooms"
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

	// 创建房间管理器，配置了 Redis 时跨实例广播
	var fanout *relay.Redis
	var opts []rooms.Option
	if cfg.Server.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Server.RedisAddr})
		defer rdb.Close()
		fanout = relay.NewRedis(rdb, relay.DefaultChannel)
		opts = append(opts, rooms.WithFanout(fanout))
	}
	roomManager := rooms.NewManager(opts...)

	if fanout != nil {
		ready := make(chan struct{})
		go func() {
			if err := fanout.Subscribe(ctx, roomManager.Deliver, ready); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Str("module", "server").Err(err).Msg("relay subscription ended")
			}
		}()
		select {
		case <-ready:
			log.Info().Str("module", "server").Str("redis", cfg.Server.RedisAddr).Msg("relay subscribed")
		case <-time.After(5 * time.Second):
			log.Warn().Str("module", "server").Str("redis", cfg.Server.RedisAddr).Msg("relay subscription not confirmed yet")
		}
	}

	// 创建Hertz服务器
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))
	router := hertzapi.NewRouter(h, roomManager)

	go func() {
		log.Info().Str("module", "server").Str("addr", addr).Msg("starting hertz server")
		router.Spin()
	}()

	<-ctx.Done()
	log.Info().Str("module", "server").Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		log.Error().Str("module", "server").Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Str("module", "server").Msg("server stopped")
}
