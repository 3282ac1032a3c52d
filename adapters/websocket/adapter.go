package websocket

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"gamifyd/realtime"
)

const writeTimeout = 5 * time.Second

// Handler returns an http.Handler that upgrades to WebSocket and streams the
// hub's events for one company. resolveCompany maps the request to the tenant
// whose events the connection may see; a non-nil error rejects the upgrade.
func Handler(hub *realtime.Hub, resolveCompany func(*http.Request) (string, error)) http.Handler {
	upgrader := gorillaws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		companyID, err := resolveCompany(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		id, ch := hub.Subscribe(companyID, 256)
		defer hub.Unsubscribe(id)

		for ev := range ch {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev)); err != nil {
				return
			}
		}
	})
}
