package app

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"sheetkeeper/api/internal/engine"
)

const streamWriteTimeout = 5 * time.Second

type streamEvent struct {
	Type  string        `json:"type"`
	State *engine.State `json:"state,omitempty"`
}

// handleStream pushes every state version of the caller's session over a
// websocket until either side goes away. Slow clients skip versions.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request, session *engine.Session) {
	opts := &websocket.AcceptOptions{}
	if pattern := originPattern(s.corsOrigin); pattern != "" {
		opts.OriginPatterns = []string{pattern}
	} else {
		opts.InsecureSkipVerify = true
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		log.Printf("app: websocket accept: %v", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	states, stop := session.Watch()
	defer stop()

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case state, ok := <-states:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(writeCtx, conn, streamEvent{Type: "state", State: &state})
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

// originPattern turns the configured CORS origin into the host pattern the
// websocket handshake checks. "*" and "" disable the check.
func originPattern(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" || origin == "*" {
		return ""
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return u.Host
	}
	return origin
}
