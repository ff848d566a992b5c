package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type busMessage struct {
	Rooms   []Room `json:"rooms,omitempty"`
	All     bool   `json:"all,omitempty"`
	Exclude string `json:"exclude,omitempty"`
	Frame   []byte `json:"frame"`
}

// RedisBus carries broadcasts between instances over one Redis channel.
// Every instance, the publishing one included, delivers to its local
// members when the message comes back, so all instances see the same order.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	local   *Registry
	log     *zap.Logger

	mu     sync.Mutex
	sub    *redis.PubSub
	done   chan struct{}
	cancel context.CancelFunc
}

func NewRedisBus(rdb *redis.Client, channel string, local *Registry, log *zap.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, channel: channel, local: local, log: log}
}

func (b *RedisBus) Broadcast(ctx context.Context, room Room, event EventType, payload any, opts ...BroadcastOption) error {
	var o broadcastOptions
	for _, opt := range opts {
		opt(&o)
	}
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}
	return b.publish(ctx, busMessage{Rooms: append([]Room{room}, o.also...), Exclude: o.exclude, Frame: frame})
}

func (b *RedisBus) BroadcastAll(ctx context.Context, event EventType, payload any) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}
	return b.publish(ctx, busMessage{All: true, Frame: frame})
}

func (b *RedisBus) publish(ctx context.Context, m busMessage) error {
	body, err := sonic.Marshal(m)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, body).Err(); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

// Start subscribes to the channel and delivers messages until Close or
// until ctx is done.
func (b *RedisBus) Start(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.sub, b.cancel, b.done = sub, cancel, make(chan struct{})
	done := b.done
	b.mu.Unlock()

	go func() {
		defer close(done)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.deliver(ctx, msg.Payload)
			}
		}
	}()
	b.log.Info("broadcast bus subscribed", zap.String("channel", b.channel))
	return nil
}

func (b *RedisBus) deliver(ctx context.Context, payload string) {
	var m busMessage
	if err := sonic.UnmarshalString(payload, &m); err != nil {
		b.log.Warn("dropping malformed bus message", zap.Error(err))
		return
	}
	if m.All {
		b.local.DeliverAll(ctx, m.Frame)
		return
	}
	b.local.Deliver(ctx, m.Rooms, m.Frame, m.Exclude)
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	sub, cancel, done := b.sub, b.cancel, b.done
	b.sub = nil
	b.mu.Unlock()
	if sub == nil {
		return nil
	}
	cancel()
	err := sub.Close()
	<-done
	return err
}
