// Package dispatcher is the gateway's single HTTP front door (spec
// §4.4): it parses every inbound path into a prefix/endpoint pair,
// resolves a Runtime from the live State, and routes to the legacy
// SSE bootstrap, its companion POST channel, or Streamable-HTTP.
package dispatcher

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/null-runner/mcp-gateway/pkg/log"
	"github.com/null-runner/mcp-gateway/pkg/session"
	"github.com/null-runner/mcp-gateway/pkg/state"
)

// StateProvider is the read side of the gateway's atomic State
// reference; the Dispatcher never writes it (spec §4.2's
// single-writer-many-readers model).
type StateProvider interface {
	Current() *state.State
}

// HeartbeatInterval is the SSE idle cadence (spec §4.4, §9): chosen so
// reverse proxies with a default 30s idle timeout never see a stream
// go quiet.
const HeartbeatInterval = 25 * time.Second

// Dispatcher is the gateway's HTTP entry point, handling every method
// on every path through one pipeline.
type Dispatcher struct {
	states   StateProvider
	sessions session.Store
}

// New builds a Dispatcher over the given live-state provider and
// session registry.
func New(states StateProvider, sessions session.Store) *Dispatcher {
	return &Dispatcher{states: states, sessions: sessions}
}

// Router builds the chi mux that routes every path to ServeHTTP; a
// single wildcard route since prefixes are dynamic, declarative
// configuration, not statically known at startup.
func (d *Dispatcher) Router() http.Handler {
	r := chi.NewRouter()
	r.HandleFunc("/*", d.ServeHTTP)
	return r
}

// ServeHTTP implements the pipeline described in spec §4.4.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix, endpoint, ok := parsePath(r.URL.Path)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "path must have at least two segments")
		return
	}

	st := d.states.Current()
	rt, found := st.Runtime[prefix]
	if !found {
		writeJSONError(w, http.StatusNotFound, "no runtime bound to prefix "+prefix)
		return
	}

	applyCORS(w, r, rt.Router.CORS)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch endpoint {
	case "sse":
		d.handleSSE(w, r, prefix, rt)
	case "message":
		d.handleMessage(w, r, prefix, rt)
	case "mcp":
		d.handleStreamable(w, r, prefix, rt)
	default:
		writeJSONError(w, http.StatusNotFound, "unknown endpoint "+endpoint)
	}
}

// parsePath splits a request path into its Router prefix and trailing
// endpoint component (spec §4.4 step 1): `prefix = "/" + join(parts[0
// .. n-1])`, `endpoint = parts[n-1]`, requiring at least two parts.
// The tenant root alone (no endpoint component) is therefore 404, per
// spec §9's resolved open question.
func parsePath(path string) (prefix, endpoint string, ok bool) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", "", false
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", "", false
	}
	endpoint = parts[len(parts)-1]
	prefix = "/" + strings.Join(parts[:len(parts)-1], "/")
	return prefix, endpoint, true
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

func logDisconnect(prefix, sessionID string) {
	log.Warnf(log.Extras{log.F("prefix", prefix), log.F("session", sessionID)}, "client disconnected, unregistering session")
}
