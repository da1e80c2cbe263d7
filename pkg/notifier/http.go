package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/null-runner/mcp-gateway/pkg/config"
	"github.com/null-runner/mcp-gateway/pkg/log"
)

// HTTPNotifier sends reloads by POSTing to a peer's `/_reload`
// endpoint and receives them by running its own `/_reload` listener
// bound to 127.0.0.1 (spec §4.5).
type HTTPNotifier struct {
	role      Role
	port      int
	targetURL string
	client    *http.Client

	mu       sync.Mutex
	watchers []chan *config.Config
	server   *http.Server
}

// NewHTTPNotifier builds an HTTP-backed Notifier. port is where Watch
// listens for incoming reloads; targetURL is where Notify POSTs.
func NewHTTPNotifier(port int, targetURL string, role Role) *HTTPNotifier {
	return &HTTPNotifier{
		role:      role,
		port:      port,
		targetURL: targetURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *HTTPNotifier) CanSend() bool    { return n.role.CanSend() }
func (n *HTTPNotifier) CanReceive() bool { return n.role.CanReceive() }

func (n *HTTPNotifier) Notify(cfg *config.Config) error {
	if !n.CanSend() {
		return &Error{Op: "notify", Err: errWrongRole}
	}
	var body *bytes.Buffer
	if cfg != nil {
		data, err := json.Marshal(cfg)
		if err != nil {
			return &Error{Op: "notify", Err: err}
		}
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(http.MethodPost, n.targetURL+"/_reload", body)
	if err != nil {
		return &Error{Op: "notify", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return &Error{Op: "notify", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &Error{Op: "notify", Err: fmt.Errorf("reload endpoint returned %d", resp.StatusCode)}
	}
	return nil
}

func (n *HTTPNotifier) Watch() (<-chan *config.Config, error) {
	if !n.CanReceive() {
		return nil, &Error{Op: "watch", Err: errWrongRole}
	}

	ch := make(chan *config.Config, watcherCapacity)
	n.mu.Lock()
	n.watchers = append(n.watchers, ch)
	started := n.server != nil
	n.mu.Unlock()

	if !started {
		if err := n.startServer(); err != nil {
			return nil, &Error{Op: "watch", Err: err}
		}
	}
	return ch, nil
}

func (n *HTTPNotifier) startServer() error {
	n.mu.Lock()
	if n.server != nil {
		n.mu.Unlock()
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/_reload", n.handleReload)
	n.server = &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", n.port), Handler: mux}
	srv := n.server
	n.mu.Unlock()

	ln, err := newListener(srv.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warnf(nil, "notifier: http reload server stopped: %v", err)
		}
	}()
	return nil
}

func (n *HTTPNotifier) handleReload(w http.ResponseWriter, r *http.Request) {
	var cfg *config.Config
	if r.ContentLength > 0 {
		var c config.Config
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		cfg = &c
	}

	n.mu.Lock()
	for _, ch := range n.watchers {
		select {
		case ch <- cfg:
		default:
			log.Warnf(nil, "notifier: http watcher queue full, dropping update")
		}
	}
	n.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"success"}`))
}

func (n *HTTPNotifier) Close() error {
	n.mu.Lock()
	srv := n.server
	n.server = nil
	watchers := n.watchers
	n.watchers = nil
	n.mu.Unlock()

	for _, ch := range watchers {
		close(ch)
	}
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
