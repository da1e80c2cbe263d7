package notifier

import (
	"sync"

	"github.com/null-runner/mcp-gateway/pkg/config"
	"github.com/null-runner/mcp-gateway/pkg/log"
)

// Composite merges N child Notifiers into one: notify broadcasts to
// every child that can send (partial failure is logged, not fatal, as
// long as one child succeeds); watch spawns a reader per receiving
// child and forwards into every merged watcher queue (spec §4.5).
//
// Duplicate reload signals from multiple "both"-role children are
// treated as harmless — a reload is idempotent — per spec §9's
// resolved open question.
type Composite struct {
	children []Notifier

	mu       sync.Mutex
	watchers []chan *config.Config
	readers  []chan struct{}
	started  bool
}

// NewComposite builds a Notifier that fans out across children, e.g.
// a Redis sender combined with a signal receiver so an operator can
// force a local reload while cluster-wide reloads travel over Redis.
func NewComposite(children ...Notifier) *Composite {
	return &Composite{children: children}
}

func (c *Composite) CanSend() bool {
	for _, n := range c.children {
		if n.CanSend() {
			return true
		}
	}
	return false
}

func (c *Composite) CanReceive() bool {
	for _, n := range c.children {
		if n.CanReceive() {
			return true
		}
	}
	return false
}

func (c *Composite) Notify(cfg *config.Config) error {
	if !c.CanSend() {
		return &Error{Op: "notify", Err: errWrongRole}
	}
	var succeeded bool
	var lastErr error
	for _, n := range c.children {
		if !n.CanSend() {
			continue
		}
		if err := n.Notify(cfg); err != nil {
			lastErr = err
			log.Warnf(nil, "composite notifier: child notify failed: %v", err)
			continue
		}
		succeeded = true
	}
	if !succeeded {
		return &Error{Op: "notify", Err: lastErr}
	}
	return nil
}

func (c *Composite) Watch() (<-chan *config.Config, error) {
	if !c.CanReceive() {
		return nil, &Error{Op: "watch", Err: errWrongRole}
	}

	ch := make(chan *config.Config, watcherCapacity)
	c.mu.Lock()
	c.watchers = append(c.watchers, ch)
	needStart := !c.started
	c.started = true
	c.mu.Unlock()

	if needStart {
		for _, n := range c.children {
			if !n.CanReceive() {
				continue
			}
			child, err := n.Watch()
			if err != nil {
				log.Warnf(nil, "composite notifier: child watch failed: %v", err)
				continue
			}
			done := make(chan struct{})
			c.mu.Lock()
			c.readers = append(c.readers, done)
			c.mu.Unlock()
			go c.forward(child, done)
		}
	}
	return ch, nil
}

func (c *Composite) forward(child <-chan *config.Config, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case cfg, ok := <-child:
			if !ok {
				return
			}
			c.mu.Lock()
			for _, w := range c.watchers {
				select {
				case w <- cfg:
				default:
					log.Warnf(nil, "composite notifier: watcher queue full, dropping update")
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close tears down children and reader goroutines in reverse order.
func (c *Composite) Close() error {
	c.mu.Lock()
	readers := c.readers
	watchers := c.watchers
	c.readers = nil
	c.watchers = nil
	c.mu.Unlock()

	for i := len(readers) - 1; i >= 0; i-- {
		close(readers[i])
	}
	var lastErr error
	for i := len(c.children) - 1; i >= 0; i-- {
		if err := c.children[i].Close(); err != nil {
			lastErr = err
		}
	}
	for _, w := range watchers {
		close(w)
	}
	return lastErr
}
