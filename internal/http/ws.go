package httpx

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/botsense/botsense/internal/event"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	// The collector runs on arbitrary instrumented origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsAck is pushed back after each accepted event so the collector can
// detect a stalled stream.
type wsAck struct {
	Accepted  bool   `json:"accepted"`
	SessionID string `json:"session_id,omitempty"`
}

// EventStream ingests one JSON Interaction per websocket message. The
// same enrichment and session routing applies as on /collect; transport
// is the only difference.
func (e Env) EventStream(w http.ResponseWriter, r *http.Request) {
	if e.Cfg.DNTRespect && r.Header.Get("DNT") == "1" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	// Same auth as /collect: an unsigned socket must not be a way
	// around payload signing.
	if e.HMACAuth != nil && !e.HMACAuth.VerifyWSHandshake(r) {
		http.Error(w, "invalid or missing HMAC signature", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var ev event.Interaction
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read failed: %v", err)
			}
			return
		}

		event.EnrichServerFields(r, &ev, e.Cfg)
		if !ev.Valid() {
			_ = conn.WriteJSON(wsAck{Accepted: false})
			continue
		}

		ctrl, sid := e.Sessions.GetOrStart(ev.SessionID)
		if ctrl == nil {
			_ = conn.WriteJSON(wsAck{Accepted: false})
			continue
		}
		ev.SessionID = sid
		ctrl.HandleEvent(ev)
		if e.Metrics != nil {
			e.Metrics.IncrementEventsIngested(ev.Kind)
		}
		_ = conn.WriteJSON(wsAck{Accepted: true, SessionID: sid})
	}
}
