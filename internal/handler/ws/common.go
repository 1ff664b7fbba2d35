// Package ws bridges the realtime protocols (chat delivery, typing,
// call signaling) onto WebSocket connections.
package ws

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxFrameSize = 64 * 1024 // SDP blobs are a few KB; 64K is generous
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin allows the origins listed in WS_ALLOWED_ORIGINS. An empty
// list allows everything, for local development.
func checkOrigin(r *http.Request) bool {
	allowed := os.Getenv("WS_ALLOWED_ORIGINS")
	if allowed == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, candidate := range strings.Split(allowed, ",") {
		if origin == strings.TrimSpace(candidate) {
			return true
		}
	}
	return false
}
