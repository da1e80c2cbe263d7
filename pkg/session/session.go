// Package session implements the gateway's registry of live client
// sessions (spec §4.1). A Session is a long-lived client context
// identified by a UUID, carrying a captured request snapshot and a
// bounded event queue; two Store implementations share the exact same
// semantics except durability (in-memory and Redis-backed).
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/null-runner/mcp-gateway/pkg/transport"
)

// Type distinguishes the wire transport a Session was established
// over; it never changes after registration.
type Type string

const (
	TypeSSE        Type = "sse"
	TypeStreamable Type = "streamable"
)

// QueueCapacity bounds every session's event queue (spec §3: capacity
// 100, overflow dropped with a warning).
const QueueCapacity = 100

var (
	// ErrNotFound is returned by Get/Unregister for an unknown id.
	ErrNotFound = errors.New("session: not found")
	// ErrAlreadyExists is returned by Register when the id is already live.
	ErrAlreadyExists = errors.New("session: already exists")
	// ErrQueueFull is returned by Send when the bounded buffer is saturated.
	ErrQueueFull = errors.New("session: queue full")
	// ErrClosed is returned by Send once the session has been closed.
	ErrClosed = errors.New("session: connection closed")
)

// Message is a single SSE-framed event queued for delivery to a
// session's client.
type Message struct {
	Event string
	Data  string
}

// Meta is the information captured when a Session is registered:
// everything the Dispatcher knows about the client at handshake time.
type Meta struct {
	Prefix  string
	Type    Type
	Request transport.RequestSnapshot
}

// Session is a live client context. Field access is synchronized
// internally; callers never need their own lock.
type Session struct {
	id        string
	createdAt time.Time
	prefix    string
	typ       Type
	request   transport.RequestSnapshot

	mu     sync.Mutex
	events chan Message
	closed bool

	// publish, when set (Redis store), is called instead of enqueuing
	// locally so cross-replica fan-out can deliver the message.
	publish func(Message) error
}

func newSession(id string, meta Meta) *Session {
	return &Session{
		id:        id,
		createdAt: time.Now(),
		prefix:    meta.Prefix,
		typ:       meta.Type,
		request:   meta.Request,
		events:    make(chan Message, QueueCapacity),
	}
}

// NewID generates an unguessable session id (spec §9: UUID v4).
func NewID() string { return uuid.NewString() }

func (s *Session) ID() string                             { return s.id }
func (s *Session) CreatedAt() time.Time                   { return s.createdAt }
func (s *Session) Prefix() string                         { return s.prefix }
func (s *Session) Type() Type                              { return s.typ }
func (s *Session) Request() transport.RequestSnapshot      { return s.request }
func (s *Session) Events() <-chan Message                 { return s.events }

// Send enqueues a message for delivery. Non-blocking: a saturated
// buffer fails with ErrQueueFull rather than back-pressuring the
// caller (spec §4.1).
func (s *Session) Send(msg Message) error {
	if s.publish != nil {
		return s.publish(msg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.events <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// deliverLocal enqueues into the local in-process queue without going
// through publish; used by the Redis store's subscriber to hand a
// cross-replica event to a locally-held Session handle.
func (s *Session) deliverLocal(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.events <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close drains and marks the session closed; subsequent Send calls
// fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// Store is the registry of live sessions. Two implementations share
// this contract: in-memory (process-local) and Redis-backed
// (cross-replica, durable with TTL). prefix is threaded through every
// lookup because the Redis store's keys are scoped `<prefix>:<id>`
// (spec §4.1); the Dispatcher always has the prefix in hand from
// routing before it ever resolves a session.
type Store interface {
	Register(prefix string, meta Meta) (*Session, error)
	Get(prefix, id string) (*Session, error)
	Unregister(prefix, id string) error
	List() ([]*Session, error)
}
