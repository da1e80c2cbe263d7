package dispatcher

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/null-runner/mcp-gateway/pkg/protocol"
	"github.com/null-runner/mcp-gateway/pkg/session"
	"github.com/null-runner/mcp-gateway/pkg/state"
	"github.com/null-runner/mcp-gateway/pkg/transport"
)

const mcpSessionHeader = "Mcp-Session-Id"

// handleStreamable implements the Streamable-HTTP endpoint (spec
// §4.4, §6): GET opens an event stream, POST carries one JSON-RPC
// request per call, DELETE ends the session.
func (d *Dispatcher) handleStreamable(w http.ResponseWriter, r *http.Request, prefix string, rt *state.Runtime) {
	switch r.Method {
	case http.MethodGet:
		d.streamableGet(w, r, prefix)
	case http.MethodPost:
		d.streamablePost(w, r, prefix, rt)
	case http.MethodDelete:
		d.streamableDelete(w, r, prefix)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed on mcp endpoint")
	}
}

func (d *Dispatcher) streamableGet(w http.ResponseWriter, r *http.Request, prefix string) {
	if !acceptsEventStream(r) {
		writeJSONError(w, http.StatusNotAcceptable, "Accept must include text/event-stream")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sessionID := r.Header.Get(mcpSessionHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusNotFound, "missing "+mcpSessionHeader)
		return
	}
	sess, err := d.sessions.Get(prefix, sessionID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "unknown session "+sessionID)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	streamEvents(w, flusher, r.Context(), sess.Events(), func() {
		logDisconnect(prefix, sess.ID())
		_ = d.sessions.Unregister(prefix, sess.ID())
	})
}

func (d *Dispatcher) streamablePost(w http.ResponseWriter, r *http.Request, prefix string, rt *state.Runtime) {
	if !acceptsEventStream(r) || !acceptsJSON(r) {
		writeJSONError(w, http.StatusNotAcceptable, "Accept must include application/json and text/event-stream")
		return
	}
	if stripParams(r.Header.Get("Content-Type")) != "application/json" {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}

	var peek struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, protocol.NewError(nil, protocol.ParseError, "invalid JSON-RPC request: "+err.Error()))
		return
	}

	sessionID := r.Header.Get(mcpSessionHeader)
	var sess *session.Session

	switch {
	case peek.Method == "initialize" && sessionID == "":
		sess, err = d.sessions.Register(prefix, session.Meta{
			Prefix:  prefix,
			Type:    session.TypeStreamable,
			Request: captureSnapshot(r),
		})
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "registering session: "+err.Error())
			return
		}
		w.Header().Set(mcpSessionHeader, sess.ID())

	case peek.Method == "initialize":
		if _, err := d.sessions.Get(prefix, sessionID); err == nil {
			writeJSONResponse(w, http.StatusBadRequest, protocol.NewError(peek.ID, protocol.InvalidRequest, "session already initialized"))
			return
		}
		writeJSONError(w, http.StatusNotFound, "unknown session "+sessionID)
		return

	default:
		if sessionID == "" {
			writeJSONError(w, http.StatusNotFound, "missing "+mcpSessionHeader)
			return
		}
		sess, err = d.sessions.Get(prefix, sessionID)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "unknown session "+sessionID)
			return
		}
	}

	merged := transport.MergeSnapshots(sess.Request(), captureSnapshot(r))
	resp := handleRPC(r.Context(), rt, body, merged)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSONResponse(w, http.StatusOK, *resp)
}

func (d *Dispatcher) streamableDelete(w http.ResponseWriter, r *http.Request, prefix string) {
	sessionID := r.Header.Get(mcpSessionHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusNotFound, "missing "+mcpSessionHeader)
		return
	}
	if err := d.sessions.Unregister(prefix, sessionID); err != nil {
		writeJSONError(w, http.StatusNotFound, "unknown session "+sessionID)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func acceptsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func acceptsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSONResponse(w http.ResponseWriter, status int, resp protocol.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
