// Package relay fans room broadcasts out across server instances through
// Redis pub/sub.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultChannel = "watchsync:broadcast"

type message struct {
	Room    string          `json:"room"`
	Exclude string          `json:"exclude,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// DeliverFunc hands a received broadcast to local connections.
type DeliverFunc func(roomCode, excludeID string, data []byte)

type Redis struct {
	rdb     *redis.Client
	channel string
	log     zerolog.Logger
}

func NewRedis(rdb *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{
		rdb:     rdb,
		channel: channel,
		log:     log.With().Str("module", "relay").Str("channel", channel).Logger(),
	}
}

func (r *Redis) Publish(ctx context.Context, roomCode, excludeID string, data []byte) error {
	payload, err := json.Marshal(message{Room: roomCode, Exclude: excludeID, Data: data})
	if err != nil {
		return fmt.Errorf("encode relay message: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Subscribe blocks, delivering every broadcast on the channel until ctx is
// done. ready, if not nil, is closed once the subscription is confirmed.
func (r *Redis) Subscribe(ctx context.Context, deliver DeliverFunc, ready chan<- struct{}) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	r.log.Info().Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil || m.Room == "" {
				r.log.Warn().Err(err).Msg("dropping malformed relay message")
				continue
			}
			deliver(m.Room, m.Exclude, m.Data)
		}
	}
}
