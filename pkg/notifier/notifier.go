// Package notifier implements the gateway's configuration-reload
// fan-out primitive (spec §4.5): watch() / notify() over three
// backends (Redis, HTTP, OS signal) plus a composite that merges any
// number of them. A nil *config.Config payload means "reload from
// source"; a non-nil payload carries the new Config inline.
package notifier

import (
	"errors"
	"fmt"

	"github.com/null-runner/mcp-gateway/pkg/config"
)

// Role gates which of Notify/Watch a Notifier instance supports.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
	RoleBoth     Role = "both"
)

func (r Role) CanSend() bool    { return r == RoleSender || r == RoleBoth }
func (r Role) CanReceive() bool { return r == RoleReceiver || r == RoleBoth }

// Error is raised to the caller of Notify/Watch on role mismatch or a
// dead channel; it never tears down peers (spec §7).
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("notifier: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

var errWrongRole = errors.New("notifier is not configured for this operation")

// Notifier is the pub/sub primitive that propagates configuration
// reload events across gateway replicas.
type Notifier interface {
	// Watch returns a channel of configuration updates; a nil value
	// on the channel means "reload from source". The channel is
	// closed when the Notifier is closed.
	Watch() (<-chan *config.Config, error)
	// Notify broadcasts an update; nil means "reload from source".
	Notify(cfg *config.Config) error
	CanSend() bool
	CanReceive() bool
	Close() error
}

// watcherCapacity bounds every watcher queue a backend fans out to;
// overflow is a drop, not back-pressure (spec §9).
const watcherCapacity = 10
