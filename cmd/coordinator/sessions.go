package main

import (
	"net/http"

	"github.com/gorilla/websocket"

	"coordinator/pkg/sandbox"
	"coordinator/pkg/session"
)

//nolint:gochecknoglobals // shared upgrader, read-only after init
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleSessionTail streams a finished session's transcript over a
// websocket using the session wire protocol and closes after the final
// control frame. Unknown or still-running sessions get a 404 before the
// upgrade so clients can poll cheaply.
func handleSessionTail(launcher *sandbox.Launcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id is required", http.StatusBadRequest)
			return
		}
		frames, ok := launcher.Transcript(id)
		if !ok {
			http.Error(w, "session not found or still running", http.StatusNotFound)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := session.NewConn(ws)
		defer conn.Close()

		for _, f := range frames {
			if f.Control != nil {
				if err := conn.SendControl(*f.Control); err != nil {
					return
				}
				continue
			}
			if err := conn.SendOutput(f.Stream, f.Data); err != nil {
				return
			}
		}
	}
}
