package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/null-runner/mcp-gateway/pkg/log"
)

// DefaultTTL is the session metadata TTL, renewed on every Send
// (spec §4.1).
const DefaultTTL = 24 * time.Hour

// redisMeta is the JSON blob stored at `<prefix>:<id>`.
type redisMeta struct {
	ID      string `json:"id"`
	Prefix  string `json:"prefix"`
	Type    Type   `json:"type"`
	Request struct {
		Headers map[string]string `json:"headers"`
		Query   map[string]string `json:"query"`
		Cookies map[string]string `json:"cookies"`
		Path    string            `json:"path"`
	} `json:"request"`
	CreatedAt time.Time `json:"created_at"`
}

// redisEvent is the payload published to the topic channel on every
// Send; lifecycle events use Action "create"/"delete" purely for
// observability, since the authoritative state lives in Redis keys,
// not the published stream (spec §4.1).
type redisEvent struct {
	Action  string    `json:"action"`
	Meta    redisMeta `json:"meta"`
	Message *Message  `json:"message,omitempty"`
}

// RedisStore is the cross-replica Session registry. Metadata is
// authoritative in Redis; each replica additionally tracks locally
// held *Session handles so it can deliver inbound pub/sub events to
// whichever process holds the paired SSE/streamable connection.
type RedisStore struct {
	client *redis.Client
	topic  string
	ttl    time.Duration

	mu    sync.Mutex
	local map[string]*Session

	cancel context.CancelFunc
}

// NewRedisStore builds a Session registry over client, subscribing to
// topic for cross-replica event fan-out. ttl defaults to DefaultTTL
// when zero.
func NewRedisStore(client *redis.Client, topic string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &RedisStore{
		client: client,
		topic:  topic,
		ttl:    ttl,
		local:  make(map[string]*Session),
		cancel: cancel,
	}
	go s.listen(ctx)
	return s
}

// Close stops the background subscriber. The underlying client is not
// owned by the store and is left to the caller.
func (s *RedisStore) Close() { s.cancel() }

func (s *RedisStore) idsKey(prefix string) string  { return prefix + ":ids" }
func (s *RedisStore) metaKey(prefix, id string) string { return prefix + ":" + id }

func (s *RedisStore) Register(prefix string, meta Meta) (*Session, error) {
	id := NewID()
	local := newSession(id, meta)
	local.publish = func(msg Message) error { return s.publish(prefix, id, msg) }

	rm := s.toRedisMeta(id, meta)
	if err := s.writeMeta(prefix, id, rm); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.local[id] = local
	s.mu.Unlock()

	s.emitLifecycle(prefix, "create", rm)
	return local, nil
}

func (s *RedisStore) writeMeta(prefix, id string, rm redisMeta) error {
	ctx := context.Background()
	data, err := json.Marshal(rm)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.metaKey(prefix, id), data, s.ttl)
	pipe.SAdd(ctx, s.idsKey(prefix), id)
	pipe.Expire(ctx, s.idsKey(prefix), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Get reads the metadata blob, verifies the id is still a member of
// the live set, refreshes both TTLs, and returns a handle whose Send
// publishes through the shared channel (spec §4.1).
func (s *RedisStore) Get(prefix, id string) (*Session, error) {
	ctx := context.Background()

	isMember, err := s.client.SIsMember(ctx, s.idsKey(prefix), id).Result()
	if err != nil {
		return nil, fmt.Errorf("checking session membership: %w", err)
	}
	if !isMember {
		return nil, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.metaKey(prefix, id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session metadata: %w", err)
	}
	var rm redisMeta
	if err := json.Unmarshal(data, &rm); err != nil {
		return nil, fmt.Errorf("unmarshal session metadata: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Expire(ctx, s.metaKey(prefix, id), s.ttl)
	pipe.Expire(ctx, s.idsKey(prefix), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf(log.Extras{log.F("session", id)}, "refreshing session TTL: %v", err)
	}

	s.mu.Lock()
	local, ok := s.local[id]
	s.mu.Unlock()
	if ok {
		return local, nil
	}

	handle := s.fromRedisMeta(rm)
	handle.publish = func(msg Message) error { return s.publish(prefix, id, msg) }
	return handle, nil
}

func (s *RedisStore) Unregister(prefix, id string) error {
	ctx := context.Background()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.metaKey(prefix, id))
	pipe.SRem(ctx, s.idsKey(prefix), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("removing session: %w", err)
	}

	s.mu.Lock()
	local, ok := s.local[id]
	delete(s.local, id)
	s.mu.Unlock()
	if ok {
		local.Close()
	}

	s.emitLifecycle(prefix, "delete", redisMeta{ID: id, Prefix: prefix})
	return nil
}

// List enumerates only the Session handles this replica currently
// holds locally; the spec's store-wide list() is a process-local
// notion and cross-replica enumeration is not part of the core's
// contract.
func (s *RedisStore) List() ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.local))
	for _, sess := range s.local {
		out = append(out, sess)
	}
	return out, nil
}

func (s *RedisStore) publish(prefix, id string, msg Message) error {
	ctx := context.Background()
	evt := redisEvent{Action: "event", Meta: redisMeta{ID: id, Prefix: prefix}, Message: &msg}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	if err := s.client.Publish(ctx, s.topic, data).Err(); err != nil {
		return fmt.Errorf("publishing session event: %w", err)
	}
	if err := s.client.Expire(ctx, s.metaKey(prefix, id), s.ttl).Err(); err != nil {
		log.Warnf(log.Extras{log.F("session", id)}, "renewing session TTL on send: %v", err)
	}
	return nil
}

func (s *RedisStore) emitLifecycle(prefix, action string, rm redisMeta) {
	ctx := context.Background()
	data, err := json.Marshal(redisEvent{Action: action, Meta: rm})
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, s.topic, data).Err(); err != nil {
		log.Warnf(log.Extras{log.F("prefix", prefix)}, "publishing session lifecycle event: %v", err)
	}
}

// listen delivers cross-replica events to locally-held Session
// handles. Lifecycle events (create/delete) are observability only
// and are not acted on here; state is authoritative in Redis keys.
func (s *RedisStore) listen(ctx context.Context) {
	sub := s.client.Subscribe(ctx, s.topic)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.deliver(msg.Payload)
		}
	}
}

func (s *RedisStore) deliver(payload string) {
	var evt redisEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		log.Warnf(nil, "decoding session event: %v", err)
		return
	}
	if evt.Action != "event" || evt.Message == nil {
		return
	}
	s.mu.Lock()
	local, ok := s.local[evt.Meta.ID]
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := local.deliverLocal(*evt.Message); err != nil {
		log.Warnf(log.Extras{log.F("session", evt.Meta.ID)}, "delivering cross-replica event: %v", err)
	}
}

func (s *RedisStore) toRedisMeta(id string, meta Meta) redisMeta {
	rm := redisMeta{ID: id, Prefix: meta.Prefix, Type: meta.Type, CreatedAt: time.Now()}
	rm.Request.Headers = meta.Request.Headers
	rm.Request.Query = meta.Request.Query
	rm.Request.Cookies = meta.Request.Cookies
	rm.Request.Path = meta.Request.Path
	return rm
}

func (s *RedisStore) fromRedisMeta(rm redisMeta) *Session {
	sess := newSession(rm.ID, Meta{Prefix: rm.Prefix, Type: rm.Type})
	sess.createdAt = rm.CreatedAt
	sess.request.Headers = rm.Request.Headers
	sess.request.Query = rm.Request.Query
	sess.request.Cookies = rm.Request.Cookies
	sess.request.Path = rm.Request.Path
	return sess
}
