package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/null-runner/mcp-gateway/pkg/config"
	"github.com/null-runner/mcp-gateway/pkg/log"
)

// RedisNotifier publishes/subscribes Config updates on a single pub/sub
// channel. notify publishes the JSON (empty payload for a reload
// signal); watch subscribes once per instance and fans out to every
// local watcher channel.
type RedisNotifier struct {
	client *redis.Client
	topic  string
	role   Role

	mu        sync.Mutex
	watchers  []chan *config.Config
	sub       *redis.PubSub
	cancel    context.CancelFunc
	subscribe sync.Once
}

// NewRedisNotifier builds a Notifier over an existing Redis client.
func NewRedisNotifier(client *redis.Client, topic string, role Role) *RedisNotifier {
	return &RedisNotifier{client: client, topic: topic, role: role}
}

func (n *RedisNotifier) CanSend() bool    { return n.role.CanSend() }
func (n *RedisNotifier) CanReceive() bool { return n.role.CanReceive() }

func (n *RedisNotifier) Notify(cfg *config.Config) error {
	if !n.CanSend() {
		return &Error{Op: "notify", Err: errWrongRole}
	}
	payload := ""
	if cfg != nil {
		data, err := json.Marshal(cfg)
		if err != nil {
			return &Error{Op: "notify", Err: err}
		}
		payload = string(data)
	}
	if err := n.client.Publish(context.Background(), n.topic, payload).Err(); err != nil {
		return &Error{Op: "notify", Err: err}
	}
	return nil
}

func (n *RedisNotifier) Watch() (<-chan *config.Config, error) {
	if !n.CanReceive() {
		return nil, &Error{Op: "watch", Err: errWrongRole}
	}

	ch := make(chan *config.Config, watcherCapacity)
	n.mu.Lock()
	n.watchers = append(n.watchers, ch)
	n.mu.Unlock()

	n.subscribe.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		n.cancel = cancel
		n.sub = n.client.Subscribe(ctx, n.topic)
		go n.listen(ctx)
	})

	return ch, nil
}

func (n *RedisNotifier) listen(ctx context.Context) {
	rch := n.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-rch:
			if !ok {
				return
			}
			n.dispatch(msg.Payload)
		}
	}
}

func (n *RedisNotifier) dispatch(payload string) {
	var cfg *config.Config
	if payload != "" {
		var c config.Config
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			log.Warnf(nil, "notifier: decoding redis payload: %v", err)
			return
		}
		cfg = &c
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, w := range n.watchers {
		select {
		case w <- cfg:
		default:
			log.Warnf(nil, "notifier: watcher queue full for topic %s, dropping update", n.topic)
		}
	}
}

func (n *RedisNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		n.cancel()
	}
	if n.sub != nil {
		if err := n.sub.Close(); err != nil {
			return fmt.Errorf("closing redis subscription: %w", err)
		}
	}
	for _, w := range n.watchers {
		close(w)
	}
	n.watchers = nil
	return nil
}
