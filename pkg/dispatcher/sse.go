package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/null-runner/mcp-gateway/pkg/log"
	"github.com/null-runner/mcp-gateway/pkg/session"
	"github.com/null-runner/mcp-gateway/pkg/state"
	"github.com/null-runner/mcp-gateway/pkg/transport"
)

// handleSSE bootstraps the legacy MCP-over-SSE transport (spec §4.4,
// §6): registers a Session, emits the initial `endpoint` event, then
// streams queued events until the client disconnects.
func (d *Dispatcher) handleSSE(w http.ResponseWriter, r *http.Request, prefix string, rt *state.Runtime) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeJSONError(w, http.StatusMethodNotAllowed, "sse endpoint requires GET")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sess, err := d.sessions.Register(prefix, session.Meta{
		Prefix:  prefix,
		Type:    session.TypeSSE,
		Request: captureSnapshot(r),
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "registering session: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	endpointURL := rt.Router.SSEPrefix + prefix + "/message?sessionId=" + sess.ID()
	writeSSEFrame(w, "endpoint", endpointURL)
	flusher.Flush()

	streamEvents(w, flusher, r.Context(), sess.Events(), func() {
		logDisconnect(prefix, sess.ID())
		_ = d.sessions.Unregister(prefix, sess.ID())
	})
}

// handleMessage is the SSE companion POST channel (spec §4.4, §6): it
// decodes one JSON-RPC request, handles it against the session's
// owning Runtime, and returns 202 immediately — the real response
// arrives as a `message` event on the paired SSE stream.
func (d *Dispatcher) handleMessage(w http.ResponseWriter, r *http.Request, prefix string, rt *state.Runtime) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "message endpoint requires POST")
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && stripParams(ct) != "application/json" {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing sessionId")
		return
	}
	sess, err := d.sessions.Get(prefix, sessionID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "unknown session "+sessionID)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)

	go func() {
		// net/http cancels r.Context() the instant this handler returns
		// (right after the 202 above), but the call this goroutine makes
		// is meant to keep running and deliver its result as a later
		// `message` event — it must not inherit the request's
		// cancellation, only its values.
		ctx := context.WithoutCancel(r.Context())
		merged := transport.MergeSnapshots(sess.Request(), captureSnapshot(r))
		resp := handleRPC(ctx, rt, body, merged)
		if resp == nil {
			return
		}
		data, err := json.Marshal(resp)
		if err != nil {
			log.Errorf(log.Extras{log.F("session", sessionID)}, "marshaling rpc response: %v", err)
			return
		}
		if err := sess.Send(session.Message{Event: "message", Data: string(data)}); err != nil {
			log.Warnf(log.Extras{log.F("session", sessionID)}, "delivering rpc response: %v", err)
		}
	}()
}

func stripParams(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}

func writeSSEFrame(w http.ResponseWriter, event, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
