package dispatcher

import (
	"context"
	"net/http"
	"time"

	"github.com/null-runner/mcp-gateway/pkg/session"
	"github.com/null-runner/mcp-gateway/pkg/transport"
)

// captureSnapshot takes the subset of an inbound request the HTTP
// template transport renders against (spec §4.3, §4.4 step 6).
func captureSnapshot(r *http.Request) transport.RequestSnapshot {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	query := make(map[string]string, len(r.URL.Query()))
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}
	return transport.RequestSnapshot{
		Headers: headers,
		Query:   query,
		Cookies: cookies,
		Path:    r.URL.Path,
	}
}

// streamEvents runs the shared SSE write loop used by both the legacy
// `sse` endpoint and the Streamable-HTTP `mcp` GET stream: emit events
// as they arrive, heartbeat on HeartbeatInterval idle, and call
// onClose once when the client disconnects or the queue closes (spec
// §4.4, §7).
func streamEvents(w http.ResponseWriter, flusher http.Flusher, ctx context.Context, events <-chan session.Message, onClose func()) {
	defer onClose()

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			writeSSEFrame(w, msg.Event, msg.Data)
			flusher.Flush()
			ticker.Reset(HeartbeatInterval)
		case <-ticker.C:
			writeSSEFrame(w, "heartbeat", "ping")
			flusher.Flush()
		}
	}
}
