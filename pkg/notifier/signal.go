package notifier

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/null-runner/mcp-gateway/pkg/config"
	"github.com/null-runner/mcp-gateway/pkg/log"
)

// SignalNotifier notifies by sending SIGHUP to the PID recorded in a
// PID file, and receives by installing a SIGHUP handler. Signals are
// payloadless by definition, so every received update is a reload
// signal (nil Config); spec §4.5.
type SignalNotifier struct {
	pidFile string
	role    Role

	mu       sync.Mutex
	watchers []chan *config.Config
	sigCh    chan os.Signal
	stop     chan struct{}
}

// NewSignalNotifier builds a Notifier that signals the process
// recorded at pidFile.
func NewSignalNotifier(pidFile string, role Role) *SignalNotifier {
	return &SignalNotifier{pidFile: pidFile, role: role}
}

func (n *SignalNotifier) CanSend() bool    { return n.role.CanSend() }
func (n *SignalNotifier) CanReceive() bool { return n.role.CanReceive() }

func (n *SignalNotifier) Notify(_ *config.Config) error {
	if !n.CanSend() {
		return &Error{Op: "notify", Err: errWrongRole}
	}
	data, err := os.ReadFile(n.pidFile)
	if err != nil {
		return &Error{Op: "notify", Err: fmt.Errorf("reading pid file %q: %w", n.pidFile, err)}
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return &Error{Op: "notify", Err: fmt.Errorf("invalid pid in %q: %w", n.pidFile, err)}
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return &Error{Op: "notify", Err: err}
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return &Error{Op: "notify", Err: fmt.Errorf("signaling pid %d: %w", pid, err)}
	}
	return nil
}

func (n *SignalNotifier) Watch() (<-chan *config.Config, error) {
	if !n.CanReceive() {
		return nil, &Error{Op: "watch", Err: errWrongRole}
	}

	ch := make(chan *config.Config, watcherCapacity)
	n.mu.Lock()
	n.watchers = append(n.watchers, ch)
	first := n.sigCh == nil
	if first {
		n.sigCh = make(chan os.Signal, 1)
		n.stop = make(chan struct{})
		signal.Notify(n.sigCh, syscall.SIGHUP)
	}
	n.mu.Unlock()

	if first {
		go n.handle()
	}
	return ch, nil
}

func (n *SignalNotifier) handle() {
	n.mu.Lock()
	sigCh, stop := n.sigCh, n.stop
	n.mu.Unlock()

	for {
		select {
		case <-stop:
			return
		case <-sigCh:
			n.mu.Lock()
			for _, ch := range n.watchers {
				select {
				case ch <- nil:
				default:
					log.Warnf(nil, "notifier: signal watcher queue full, dropping reload")
				}
			}
			n.mu.Unlock()
		}
	}
}

func (n *SignalNotifier) Close() error {
	n.mu.Lock()
	if n.sigCh != nil {
		signal.Stop(n.sigCh)
		close(n.stop)
		n.sigCh = nil
	}
	watchers := n.watchers
	n.watchers = nil
	n.mu.Unlock()

	for _, ch := range watchers {
		close(ch)
	}
	return nil
}

// WritePIDFile writes the current process id to path, for use as the
// SignalNotifier's sender-side target on a peer replica.
func WritePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
